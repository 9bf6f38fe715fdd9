package main

import (
	"fmt"
	"sort"

	"github.com/go-pvaccess/pva/pkg/codec"
)

// putSizedString/getSizedString/readSnapshot mirror pkg/provider/wire.go's
// minimal one-byte-length-prefixed wire convention; they are reimplemented
// here rather than imported because provider's are package-private, and a
// CLI client is exactly the kind of caller that convention was never meant
// to expose internals to.
func putSizedString(w *codec.Writer, s string) error {
	if err := w.PutByte(byte(len(s))); err != nil {
		return err
	}
	return w.PutBytes([]byte(s))
}

func getSizedString(r *codec.Reader) (string, error) {
	n, err := r.GetByte()
	if err != nil {
		return "", err
	}
	b, err := r.GetBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeFieldValue(w *codec.Writer, name string, value string) error {
	if err := putSizedString(w, name); err != nil {
		return err
	}
	return putSizedString(w, value)
}

func writeSnapshot(w *codec.Writer, fields map[string]string) error {
	if err := w.PutUint16(uint16(len(fields))); err != nil {
		return err
	}
	for name, value := range fields {
		if err := writeFieldValue(w, name, value); err != nil {
			return err
		}
	}
	return nil
}

func readSnapshot(r *codec.Reader) (map[string]string, error) {
	count, err := r.GetUint16()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, count)
	for i := 0; i < int(count); i++ {
		name, err := getSizedString(r)
		if err != nil {
			return nil, err
		}
		value, err := getSizedString(r)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}

func readStatus(r *codec.Reader) (string, error) {
	return getSizedString(r)
}

// formatFields turns a snapshot map into a stable, human-readable line.
func formatFields(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	s := ""
	for _, name := range names {
		if s != "" {
			s += " "
		}
		s += fmt.Sprintf("%s=%s", name, fields[name])
	}
	return s
}

func parseAssignments(args []string) map[string]string {
	out := make(map[string]string, len(args))
	for _, a := range args {
		for i := 0; i < len(a); i++ {
			if a[i] == '=' {
				out[a[:i]] = a[i+1:]
				break
			}
		}
	}
	return out
}
