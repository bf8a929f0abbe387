package utils

import (
	"context"
	"time"
)

// RetryPolicy describe reintentos acotados con backoff fijo y un predicado
// de errores reintentables. Sustituye a las anotaciones declarativas típicas
// de otros frameworks: la política es un valor explícito en el call site.
type RetryPolicy struct {
	Attempts  int
	Backoff   time.Duration
	Retryable func(error) bool // nil => todo error se reintenta
}

// Do ejecuta fn bajo la política. Devuelve el último error si se agotan los
// intentos o si el error no es reintentable.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < p.Attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if i == p.Attempts-1 {
			break
		}

		select {
		case <-time.After(p.Backoff):
			// espera antes del siguiente intento
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Retry es el helper clásico sin predicado, para call sites simples.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	return RetryPolicy{Attempts: attempts, Backoff: delay}.Do(ctx, fn)
}
