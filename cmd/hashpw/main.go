// Package main prints the bcrypt hash to set as AUTH_PASSWORD_HASH.
//
// The password is read from the first line of stdin so it stays out of the
// shell history:
//
//	echo -n 'hunter22' | go run ./cmd/hashpw -cost 12
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/voice-notes-ai/backend/pkg/utils"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cost := flag.Int("cost", 0, "bcrypt cost (0 uses the bcrypt default)")
	verify := flag.String("verify", "", "check the password against this hash instead of hashing it")
	flag.Parse()

	if err := run(os.Stdin, os.Stdout, *cost, *verify); err != nil {
		logger.Fatal("hashpw", zap.Error(err))
	}
}

var errMismatch = errors.New("password does not match hash")

func run(in io.Reader, out io.Writer, cost int, verify string) error {
	password, err := readPassword(in)
	if err != nil {
		return err
	}
	if verify != "" {
		if !utils.CheckPassword(password, verify) {
			return errMismatch
		}
		_, err = fmt.Fprintln(out, "ok")
		return err
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

// readPassword returns the first line of in without its line ending.
func readPassword(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
