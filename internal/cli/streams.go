package cli

import (
	"errors"
	"io"
	"os"

	"golang.org/x/term"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

type streams struct {
	out      io.Writer
	errOut   io.Writer
	wrapped  bool
	terminal bool
	closers  []io.Closer
}

// configureStreams wraps stdout and stderr on Windows, where the console code
// page may not hold arbitrary transcript text. Ill-formed UTF-8 is replaced
// with U+FFFD instead of being passed through.
func configureStreams(goos string, out, errOut io.Writer) *streams {
	s := &streams{out: out, errOut: errOut}
	if f, ok := errOut.(*os.File); ok {
		s.terminal = term.IsTerminal(int(f.Fd()))
	}

	if goos != "windows" {
		return s
	}

	wrappedOut := transform.NewWriter(out, unicode.UTF8.NewEncoder())
	wrappedErr := transform.NewWriter(errOut, unicode.UTF8.NewEncoder())
	s.out = wrappedOut
	s.errOut = wrappedErr
	s.wrapped = true
	s.closers = []io.Closer{wrappedOut, wrappedErr}
	return s
}

func (s *streams) flush() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
