// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
)

// Group selects which backend datastore(s) accompany the next send.
type Group string

const (
	GroupGP2  Group = "gp2"
	GroupGP3  Group = "gp3"
	GroupBoth Group = "both"
)

// ParseGroup converts user input to a Group.
func ParseGroup(s string) (Group, error) {
	switch Group(strings.ToLower(strings.TrimSpace(s))) {
	case GroupGP2:
		return GroupGP2, nil
	case GroupGP3:
		return GroupGP3, nil
	case GroupBoth:
		return GroupBoth, nil
	default:
		return "", fmt.Errorf("unknown group %q (want gp2, gp3, or both)", s)
	}
}

// Datastores holds the configured datastore path per group.
type Datastores struct {
	GP2 string
	GP3 string
}

// PathsFor maps a group selector to the datastore paths sent with a
// chat request: gp2 and gp3 select their own path, both selects the
// pair. Unconfigured paths are skipped; an empty result is sent as
// null so the backend reports the missing configuration.
func (d Datastores) PathsFor(group Group) []string {
	var paths []string
	if (group == GroupGP2 || group == GroupBoth) && d.GP2 != "" {
		paths = append(paths, d.GP2)
	}
	if (group == GroupGP3 || group == GroupBoth) && d.GP3 != "" {
		paths = append(paths, d.GP3)
	}
	return paths
}
