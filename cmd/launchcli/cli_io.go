package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

func readLine(r *bufio.Reader, prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	t, _ := r.ReadString('\n')
	return strings.TrimSpace(t)
}

func readPassword(prompt string) string {
	if !term.IsTerminal(int(syscall.Stdin)) {
		die("MAIN_WALLET_PRIVATE_KEY is empty and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil { die("failed to read password: " + err.Error()) }
	return strings.TrimSpace(string(b))
}

func yes(s string) bool { s = strings.ToLower(strings.TrimSpace(s)); return s == "y" || s == "yes" }
func maskHex(h string) string { h = strings.TrimSpace(h); if len(h) <= 10 { return "***" }; return h[:6] + "…" + h[len(h)-4:] }

// confirm asks before sending unless --yes was given.
func confirm(assumeYes bool, what string) bool {
	if assumeYes { return true }
	return yes(readLine(bufio.NewReader(os.Stdin), what+" Proceed? [y/N]: "))
}

func die(message string) {
	fmt.Fprintln(os.Stderr, "Error:", message)
	os.Exit(1)
}
