package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"newco.ai/founder-scout/internal/core"
)

const saveRetryMessage = "We could not save your conversation. Type /save to try again."

// runTerminal runs one interview over in/out. The conversation is saved as
// soon as the interviewer signals completion; a failed save can be retried
// with "/save". "/new" starts over.
func runTerminal(ctx context.Context, interviews *core.InterviewService, in io.Reader, out io.Writer) error {
	session := interviews.StartSession()
	fmt.Fprintln(out, "The Unfair Advantage Scout")
	fmt.Fprintf(out, "Session %s. Type your message, \"/new\" to start over, Ctrl+D to quit.\n\n", session.ID)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "/new":
			next, err := interviews.ResetSession(session.ID)
			if err != nil {
				return err
			}
			session = next
			fmt.Fprintf(out, "Started a new conversation (session %s).\n\n", session.ID)
			continue
		case "/save":
			done, err := saveTerminalSession(ctx, interviews, session.ID, out)
			if err != nil || done {
				return err
			}
			continue
		}

		if err := interviews.AppendUserMessage(session.ID, text); err != nil {
			if errors.Is(err, core.ErrInterviewComplete) {
				fmt.Fprintln(out, "The interview is complete. Type /save to save it or /new to start over.")
				continue
			}
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}

		turn, err := interviews.StreamAssistantTurn(ctx, session.ID, func(fragment string) {
			fmt.Fprint(out, fragment)
		})
		if err != nil {
			return err
		}
		fmt.Fprint(out, "\n\n")

		if !turn.InterviewComplete {
			continue
		}
		done, err := saveTerminalSession(ctx, interviews, session.ID, out)
		if err != nil || done {
			return err
		}
	}
}

// saveTerminalSession reports done once there is nothing left to save. A
// failed store write is shown to the user and leaves the session ready for
// another attempt.
func saveTerminalSession(ctx context.Context, interviews *core.InterviewService, sessionID string, out io.Writer) (bool, error) {
	result, err := interviews.EndSession(ctx, sessionID)
	switch {
	case errors.Is(err, core.ErrInterviewInProgress):
		fmt.Fprintln(out, "The interview is not finished yet.")
		return false, nil
	case err != nil:
		return false, err
	}

	switch {
	case result.Outcome.Success():
		fmt.Fprintln(out, "Thank you for the conversation! Your chat has been saved.")
		return true, nil
	case errors.Is(result.Err, core.ErrPersistenceDisabled):
		fmt.Fprintln(out, "Conversation storage is not configured, so this conversation was not saved.")
		return true, nil
	default:
		fmt.Fprintln(out, saveRetryMessage)
		return false, nil
	}
}
