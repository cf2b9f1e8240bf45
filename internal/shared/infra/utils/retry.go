package utils

import (
	"context"
	"errors"
	"time"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marca un error que no se debe reintentar.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retry ejecuta fn hasta attempts veces con backoff lineal (delay, 2*delay, ...).
// Corta en seco ante un error permanente o si el contexto se cancela.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || IsPermanent(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-time.After(delay * time.Duration(i+1)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
