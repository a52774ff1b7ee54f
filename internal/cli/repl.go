// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - Interactive REPL for the gemlite terminal client.
//
// Plain input is sent to the active conversation on the gemini-lite
// backend; slash commands manage conversations, the auth key, and the
// datastore group selector.
//
// Interactive Commands:
//   /new                Start a new conversation
//   /list, /ls          List conversations (active marked with *)
//   /select N           Switch to conversation N from /list
//   /rename TITLE       Rename the active conversation
//   /delete [N]         Delete conversation N (default: active)
//   /import FILE        Import a Vertex prompt-export JSON file
//   /system [TEXT]      Show, set, or clear the system instruction
//   /group [NAME]       Show or switch datastore group (gp2, gp3, both)
//   /key [VALUE]        Show whether a key is set, set, or clear it
//   /refresh            Reload the active history from the backend
//   /history            Show the active conversation's messages
//   /doctor             Check backend connectivity
//   /help, /h           Show available commands
//   /quit, /q           Exit
//   Ctrl+D              Exit
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/jeranaias/gemlite/internal/chat"
	"github.com/jeranaias/gemlite/internal/config"
	"github.com/jeranaias/gemlite/internal/gateway"
	"github.com/jeranaias/gemlite/internal/importer"
	"github.com/jeranaias/gemlite/internal/model"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	// Prompt style
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)

	// Welcome banner style
	welcomeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	// Info style
	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	// Command style
	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	// Warning style
	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	// Error style
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true)

	// Speaker labels in transcripts
	userLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true)

	modelLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// InputCLI provides input history and line editing for the REPL.
type InputCLI struct {
	line        *liner.State
	historyFile string
}

// NewInputCLI creates an InputCLI with history loaded from the config
// directory.
func NewInputCLI() *InputCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	cli := &InputCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "input_history"),
	}
	cli.LoadHistory()
	return cli
}

// LoadHistory loads command history from file.
func (c *InputCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt. Non-empty
// input is appended to history.
func (c *InputCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history with owner-only permissions.
func (c *InputCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *InputCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// REPL drives an interactive session against a chat controller.
type REPL struct {
	controller *chat.Controller
	client     *gateway.Client
	input      *InputCLI
}

// NewREPL creates a REPL over the given controller and gateway client.
func NewREPL(controller *chat.Controller, client *gateway.Client) *REPL {
	return &REPL{
		controller: controller,
		client:     client,
		input:      NewInputCLI(),
	}
}

// Run executes the REPL loop until /quit or EOF.
func (r *REPL) Run(ctx context.Context) error {
	defer r.input.Close()

	r.printWelcome()

	for {
		input, err := r.input.ReadInput(promptStyle.Render("gemlite> "))
		if err != nil {
			// Ctrl+C or EOF (Ctrl+D) exits gracefully.
			fmt.Println()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldContinue, err := r.handleSlashCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			if !shouldContinue {
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}

		r.sendMessage(ctx, input)
	}
}

func (r *REPL) printWelcome() {
	fmt.Println(welcomeStyle.Render("gemlite - gemini-lite terminal client"))

	state := r.controller.State()
	fmt.Println(infoStyle.Render(fmt.Sprintf("%d conversation(s), group %s. Type /help for commands.",
		len(state.Conversations), state.Group)))
	if state.AuthKey == "" {
		fmt.Println(warningStyle.Render("No auth key set; use /key VALUE if the backend requires one."))
	}
	fmt.Println()
}

// sendMessage runs the full send transition and prints the reply. A
// session without conversations gets one created implicitly, matching
// what a user means by typing a message into an empty client.
func (r *REPL) sendMessage(ctx context.Context, input string) {
	if _, ok := r.controller.ActiveConversation(); !ok {
		r.controller.NewConversation()
	}

	r.controller.SetInput(input)
	reply := r.controller.Send(ctx)
	if reply == nil {
		fmt.Println(warningStyle.Render("Nothing sent."))
		return
	}

	fmt.Println()
	printMessage(*reply)
}

func printMessage(m model.Message) {
	label := userLabelStyle.Render(m.Role.DisplayName() + ":")
	if m.Role != model.RoleUser {
		label = modelLabelStyle.Render(m.Role.DisplayName() + ":")
	}
	fmt.Printf("%s %s\n", label, m.Content)
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand dispatches a slash command. Returns false when the
// REPL should exit.
func (r *REPL) handleSlashCommand(ctx context.Context, input string) (bool, error) {
	parts := strings.SplitN(input, " ", 2)
	command := strings.ToLower(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch command {
	case "/quit", "/q", "/exit":
		return false, nil

	case "/help", "/h":
		r.printHelp()
		return true, nil

	case "/new":
		conv := r.controller.NewConversation()
		fmt.Println(infoStyle.Render("Started " + conv.Title + " (" + shortID(conv.ID) + ")"))
		return true, nil

	case "/list", "/ls":
		r.printConversations()
		return true, nil

	case "/select":
		return true, r.selectConversation(arg)

	case "/rename":
		return true, r.renameConversation(arg)

	case "/delete", "/rm":
		return true, r.deleteConversation(ctx, arg)

	case "/import":
		return true, r.importConversation(ctx, arg)

	case "/system":
		return true, r.systemInstruction(arg)

	case "/group":
		return true, r.group(arg)

	case "/key":
		return true, r.authKey(arg)

	case "/refresh":
		if err := r.controller.RefreshMessages(ctx); err != nil {
			return true, err
		}
		fmt.Println(infoStyle.Render("History refreshed."))
		return true, nil

	case "/history":
		r.printHistory()
		return true, nil

	case "/doctor":
		return true, r.doctor(ctx)

	default:
		return true, fmt.Errorf("unknown command %s (try /help)", command)
	}
}

func (r *REPL) printHelp() {
	help := [][2]string{
		{"/new", "Start a new conversation"},
		{"/list, /ls", "List conversations"},
		{"/select N", "Switch to conversation N"},
		{"/rename TITLE", "Rename the active conversation"},
		{"/delete [N]", "Delete conversation N (default: active)"},
		{"/import FILE", "Import a prompt-export JSON file"},
		{"/system [TEXT]", "Show, set, or clear the system instruction"},
		{"/group [NAME]", "Show or switch datastore group (gp2, gp3, both)"},
		{"/key [VALUE]", "Show, set, or clear the auth key"},
		{"/refresh", "Reload the active history from the backend"},
		{"/history", "Show the active conversation"},
		{"/doctor", "Check backend connectivity"},
		{"/quit, /q", "Exit"},
	}
	for _, entry := range help {
		fmt.Printf("  %s %s\n",
			commandStyle.Render(fmt.Sprintf("%-16s", entry[0])),
			infoStyle.Render(entry[1]))
	}
}

func (r *REPL) printConversations() {
	state := r.controller.State()
	if len(state.Conversations) == 0 {
		fmt.Println(infoStyle.Render("No conversations. /new starts one."))
		return
	}

	for i, conv := range state.Conversations {
		marker := " "
		if conv.ID == state.ActiveID {
			marker = "*"
		}
		line := fmt.Sprintf("%s %2d. %s (%s)", marker, i+1, conv.Title, shortID(conv.ID))
		if conv.ID == state.ActiveID {
			fmt.Println(commandStyle.Render(line))
		} else {
			fmt.Println(line)
		}
	}
}

func (r *REPL) selectConversation(arg string) error {
	conv, err := r.resolveConversation(arg)
	if err != nil {
		return err
	}
	r.controller.SelectConversation(conv.ID)
	fmt.Println(infoStyle.Render("Switched to " + conv.Title))
	return nil
}

func (r *REPL) renameConversation(arg string) error {
	conv, ok := r.controller.ActiveConversation()
	if !ok {
		return errors.New("no active conversation")
	}
	if !r.controller.RenameConversation(conv.ID, arg) {
		return errors.New("title cannot be empty")
	}
	return nil
}

func (r *REPL) deleteConversation(ctx context.Context, arg string) error {
	var conv model.Conversation
	if arg == "" {
		active, ok := r.controller.ActiveConversation()
		if !ok {
			return errors.New("no active conversation")
		}
		conv = active
	} else {
		resolved, err := r.resolveConversation(arg)
		if err != nil {
			return err
		}
		conv = resolved
	}

	r.controller.DeleteConversation(ctx, conv.ID)
	fmt.Println(infoStyle.Render("Deleted " + conv.Title))
	return nil
}

func (r *REPL) importConversation(ctx context.Context, arg string) error {
	if arg == "" {
		return errors.New("usage: /import FILE")
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", arg, err)
	}

	var doc importer.PromptExport
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("not a valid prompt export: %w", err)
	}

	conv, err := r.controller.ImportConversation(ctx, doc)
	if err != nil {
		// The local import succeeded; only the remote save failed.
		fmt.Println(infoStyle.Render("Imported " + conv.Title + " locally"))
		return fmt.Errorf("remote save failed: %w", err)
	}

	fmt.Println(infoStyle.Render(fmt.Sprintf("Imported %s (%d message(s))",
		conv.Title, len(r.controller.Messages(conv.ID)))))
	return nil
}

func (r *REPL) systemInstruction(arg string) error {
	conv, ok := r.controller.ActiveConversation()
	if !ok {
		return errors.New("no active conversation")
	}

	if arg == "" {
		if conv.SystemInstruction == "" {
			fmt.Println(infoStyle.Render("No system instruction set. /system TEXT sets one, /system clear removes it."))
		} else {
			fmt.Println(infoStyle.Render("System instruction: " + conv.SystemInstruction))
		}
		return nil
	}

	if strings.EqualFold(arg, "clear") {
		r.controller.SetSystemInstruction(conv.ID, "")
		fmt.Println(infoStyle.Render("System instruction cleared."))
		return nil
	}

	r.controller.SetSystemInstruction(conv.ID, arg)
	fmt.Println(infoStyle.Render("System instruction set."))
	return nil
}

func (r *REPL) group(arg string) error {
	if arg == "" {
		fmt.Println(infoStyle.Render("Group: " + string(r.controller.State().Group)))
		return nil
	}

	group, err := chat.ParseGroup(arg)
	if err != nil {
		return err
	}
	r.controller.SetGroup(group)
	fmt.Println(infoStyle.Render("Group set to " + string(group)))
	return nil
}

func (r *REPL) authKey(arg string) error {
	if arg == "" {
		if r.controller.State().AuthKey == "" {
			fmt.Println(infoStyle.Render("No auth key set. /key VALUE sets one, /key clear removes it."))
		} else {
			fmt.Println(infoStyle.Render("Auth key is set. /key clear removes it."))
		}
		return nil
	}

	if strings.EqualFold(arg, "clear") {
		r.controller.SetAuthKeyInput("")
		fmt.Println(infoStyle.Render("Auth key cleared."))
		return nil
	}

	r.controller.SetAuthKeyInput(arg)
	fmt.Println(infoStyle.Render("Auth key saved."))
	return nil
}

func (r *REPL) printHistory() {
	conv, ok := r.controller.ActiveConversation()
	if !ok {
		fmt.Println(infoStyle.Render("No active conversation."))
		return
	}

	messages := r.controller.Messages(conv.ID)
	if len(messages) == 0 {
		fmt.Println(infoStyle.Render("No messages yet in " + conv.Title))
		return
	}

	fmt.Println(commandStyle.Render(conv.Title))
	for _, m := range messages {
		printMessage(m)
	}
}

func (r *REPL) doctor(ctx context.Context) error {
	if err := r.client.Health(ctx); err != nil {
		return fmt.Errorf("backend check failed: %w", err)
	}
	fmt.Println(commandStyle.Render("Backend is reachable."))
	return nil
}

// resolveConversation accepts a 1-based index from /list or a
// conversation ID prefix.
func (r *REPL) resolveConversation(arg string) (model.Conversation, error) {
	state := r.controller.State()
	if len(state.Conversations) == 0 {
		return model.Conversation{}, errors.New("no conversations")
	}

	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(state.Conversations) {
			return model.Conversation{}, fmt.Errorf("conversation %d does not exist (1-%d)", n, len(state.Conversations))
		}
		return state.Conversations[n-1], nil
	}

	for _, conv := range state.Conversations {
		if conv.ID == arg || strings.HasPrefix(conv.ID, arg) {
			return conv, nil
		}
	}
	return model.Conversation{}, fmt.Errorf("no conversation matching %q", arg)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
