package config

import (
	"fmt"
	"strings"
)

// Issue is one problem found in a config field.
type Issue struct {
	Field   string
	Message string
}

// ValidationError lists every issue found in a config.
type ValidationError struct {
	Issues []Issue
}

func (err *ValidationError) Error() string {
	if err == nil || len(err.Issues) == 0 {
		return "config validation failed"
	}
	var b strings.Builder
	for i, issue := range err.Issues {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", issue.Field, issue.Message)
	}
	return b.String()
}

// Has reports whether any issue was raised for field.
func (err *ValidationError) Has(field string) bool {
	if err == nil {
		return false
	}
	for _, issue := range err.Issues {
		if issue.Field == field {
			return true
		}
	}
	return false
}

type issueAdder func(field, message string)

// under scopes every field reported through the adder below prefix.
func (add issueAdder) under(prefix string) issueAdder {
	return func(field, message string) {
		add(prefix+"."+field, message)
	}
}

type issueCollector struct {
	issues []Issue
}

func (c *issueCollector) add(field, message string) {
	c.issues = append(c.issues, Issue{Field: field, Message: message})
}

func (c *issueCollector) result() error {
	if len(c.issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: c.issues}
}
