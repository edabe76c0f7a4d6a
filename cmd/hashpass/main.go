// Command hashpass prints a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
//
// The password is read from ADMIN_PASSWORD when set, otherwise it is
// prompted for on the terminal without echo.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/iliyamo/course-enrollment/internal/utils"
)

func main() {
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	flag.Parse()

	plain, err := readPassword()
	if err != nil {
		fmt.Fprintln(os.Stderr, "hashpass:", err)
		os.Exit(1)
	}
	hash, err := utils.HashPassword(plain, *cost)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hashpass:", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

func readPassword() (string, error) {
	if v, ok := os.LookupEnv("ADMIN_PASSWORD"); ok {
		if strings.TrimSpace(v) == "" {
			return "", errors.New("ADMIN_PASSWORD is set but empty")
		}
		return v, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available; set ADMIN_PASSWORD")
	}
	fmt.Fprint(os.Stderr, "Admin password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", errors.New("password cannot be empty")
	}
	return string(b), nil
}
