package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"convo-search/internal/llm"
	"convo-search/internal/service"
)

type repl struct {
	svc       *service.SearchService
	apiKey    string
	in        io.Reader
	out       io.Writer
	sessionID string
}

func (r *repl) run(ctx context.Context, first string) error {
	fmt.Fprintln(r.out, "---- Búsqueda conversacional (/new nueva sesión, exit para salir) ----")

	if q := strings.TrimSpace(first); q != "" {
		r.ask(ctx, q)
	}

	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, "Tú > ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("leer input: %w", err)
			}
			fmt.Fprintln(r.out)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "exit"), strings.EqualFold(line, "salir"):
			return nil
		case line == "/new":
			r.sessionID = ""
			fmt.Fprintln(r.out, "Nueva sesión.")
			continue
		}
		r.ask(ctx, line)
	}
}

func (r *repl) ask(ctx context.Context, query string) {
	resp, err := r.svc.Converse(ctx, r.apiKey, r.sessionID, query)
	if err != nil {
		r.printError(err)
		return
	}
	if resp.Restarted {
		fmt.Fprintln(r.out, "(la sesión anterior venció, se inició una nueva)")
	}
	r.sessionID = resp.SessionID
	printResponse(r.out, resp)
}

func (r *repl) printError(err error) {
	if pe, ok := llm.AsProviderError(err); ok {
		if pe.Retryable() {
			fmt.Fprintf(r.out, "Error del proveedor: %s (puedes reintentar)\n", pe.Message)
			return
		}
		fmt.Fprintf(r.out, "Error del proveedor: %s\n", pe.Message)
		return
	}
	if errors.Is(err, service.ErrInvalidQuery) {
		fmt.Fprintln(r.out, "La consulta no puede estar vacía.")
		return
	}
	fmt.Fprintf(r.out, "Error: %v\n", err)
}

func printResponse(w io.Writer, resp service.SearchResponse) {
	fmt.Fprintf(w, "\n%s\n", resp.Summary)
	if len(resp.Sources) == 0 {
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintln(w, "\nFuentes:")
	for i, src := range resp.Sources {
		title := src.Title
		if title == "" {
			title = src.URL
		}
		fmt.Fprintf(w, "  [%d] %s - %s\n", i+1, title, src.URL)
	}
	fmt.Fprintln(w)
}
