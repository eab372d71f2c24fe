package keyholder

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-faster/errors"
	"golang.org/x/term"
)

// PasscodePrompt asks the user for the keystore passcode.
type PasscodePrompt interface {
	Passcode(ctx context.Context) ([]byte, error)
}

// TerminalPrompt reads the passcode from the terminal without echo.
type TerminalPrompt struct {
	Prompt string
	In     *os.File
	Out    io.Writer
}

func NewTerminalPrompt() *TerminalPrompt {
	return &TerminalPrompt{Prompt: "Passcode: ", In: os.Stdin, Out: os.Stderr}
}

func (p *TerminalPrompt) Passcode(ctx context.Context) ([]byte, error) {
	fd := int(p.In.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("passcode prompt requires a terminal")
	}
	type result struct {
		passcode []byte
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		fmt.Fprint(p.Out, p.Prompt)
		passcode, err := term.ReadPassword(fd)
		fmt.Fprintln(p.Out)
		ch <- result{passcode, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.passcode, r.err
	}
}

// StaticPrompt returns a fixed passcode. It is used for non-interactive runs.
type StaticPrompt []byte

func (p StaticPrompt) Passcode(ctx context.Context) ([]byte, error) {
	if len(p) == 0 {
		return nil, errors.New("empty passcode")
	}
	return append([]byte(nil), p...), nil
}
