// Package prompt wraps interactive terminal prompts for the CLI.
package prompt

import (
	"errors"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user aborts a prompt (Ctrl+C).
var ErrAborted = errors.New("aborted")

// wrapError converts promptui interrupt/abort errors to ErrAborted for
// consistent handling.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) {
		return ErrAborted
	}
	return err
}

// Password prompts for a masked passphrase with validation.
func Password(label string, validate func(string) error) (string, error) {
	p := promptui.Prompt{
		Label:    label,
		Mask:     '*',
		Validate: validate,
	}
	result, err := p.Run()
	return result, wrapError(err)
}

// PasswordConfirmed prompts for a masked passphrase twice and checks the
// two entries match.
func PasswordConfirmed(label string, validate func(string) error) (string, error) {
	password, err := Password(label, validate)
	if err != nil {
		return "", err
	}
	confirmed, err := Password("Confirm "+label, nil)
	if err != nil {
		return "", err
	}
	if password != confirmed {
		return "", errors.New("entries do not match")
	}
	return password, nil
}
