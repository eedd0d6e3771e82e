package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/docgpt/docgpt/internal/github"
)

// ErrNoSelection is returned when the user quits the repository menu.
var ErrNoSelection = errors.New("no repository selected")

// newLinePrompt returns a prompt function that writes prompt to w and reads one line
// from r. End of input is reported as io.EOF so callers can treat it as an interrupt.
func newLinePrompt(r io.Reader, w io.Writer) func(prompt string) (string, error) {
	reader := bufio.NewReader(r)
	return func(prompt string) (string, error) {
		_, _ = fmt.Fprint(w, prompt)
		value, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && strings.TrimSpace(value) != "" {
				return strings.TrimSpace(value), nil
			}
			return "", err
		}
		return strings.TrimSpace(value), nil
	}
}

// chooseRepository prints a numbered menu and returns the index of the chosen repository.
// Entering q quits with ErrNoSelection. Invalid input is asked again.
func chooseRepository(w io.Writer, prompt func(string) (string, error), repos []github.Repository) (int, error) {
	if len(repos) == 0 {
		return -1, ErrNoSelection
	}
	for i, repo := range repos {
		_, _ = fmt.Fprintf(w, "%3d. %s - %s\n", i+1, repo.Name, repo.HTMLURL)
	}
	for {
		input, err := prompt(fmt.Sprintf("Select a repository [1-%d, q to quit]: ", len(repos)))
		if err != nil {
			return -1, err
		}
		if strings.EqualFold(input, "q") {
			return -1, ErrNoSelection
		}
		n, errAtoi := strconv.Atoi(input)
		if errAtoi != nil || n < 1 || n > len(repos) {
			_, _ = fmt.Fprintf(w, "Please enter a number between 1 and %d.\n", len(repos))
			continue
		}
		return n - 1, nil
	}
}

// findRepository returns the index of the repository whose name or full name matches.
func findRepository(repos []github.Repository, name string) int {
	name = strings.TrimSpace(name)
	for i, repo := range repos {
		if strings.EqualFold(repo.Name, name) || strings.EqualFold(repo.FullName, name) {
			return i
		}
	}
	return -1
}

// confirm asks a yes/no question; anything but y or yes is a no.
func confirm(prompt func(string) (string, error), question string) (bool, error) {
	answer, err := prompt(question + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
