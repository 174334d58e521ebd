package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// prompter asks interactive questions on out and reads answers from in.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// answer reads one trimmed line. eof is set when input ended with it.
func (p *prompter) answer() (line string, eof bool, err error) {
	line, err = p.in.ReadString('\n')
	if errors.Is(err, io.EOF) {
		return strings.TrimSpace(line), true, nil
	}
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(line), false, nil
}

// confirm asks a yes/no question; an empty answer takes the default.
func (p *prompter) confirm(label string, defaultYes bool) (bool, error) {
	choices := "y/N"
	if defaultYes {
		choices = "Y/n"
	}
	for {
		fmt.Fprintf(p.out, "%s [%s]: ", label, choices)
		line, eof, err := p.answer()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "":
			return defaultYes, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		if eof {
			return false, fmt.Errorf("invalid response %q", line)
		}
		fmt.Fprintln(p.out, "Please answer yes or no.")
	}
}

// ask reads a value until check accepts it. An empty answer takes
// defaultValue when one is set.
func (p *prompter) ask(label, defaultValue string, check func(string) error) (string, error) {
	for {
		if defaultValue != "" {
			fmt.Fprintf(p.out, "%s [%s]: ", label, defaultValue)
		} else {
			fmt.Fprintf(p.out, "%s: ", label)
		}
		line, eof, err := p.answer()
		if err != nil {
			return "", err
		}
		if line == "" {
			line = defaultValue
		}
		if line == "" {
			if eof {
				return "", fmt.Errorf("missing input for %s", label)
			}
			continue
		}
		if check != nil {
			if err := check(line); err != nil {
				if eof {
					return "", err
				}
				fmt.Fprintln(p.out, err)
				continue
			}
		}
		return line, nil
	}
}
