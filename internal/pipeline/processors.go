package pipeline

import (
	"bytes"
	"fmt"
	"strconv"
)

func init() {
	RegisterFactory("stamp", func(params map[string]string) (Processor, error) {
		server := params["server"]
		if server == "" {
			server = "kestrel"
		}
		return &StampProcessor{Server: server}, nil
	})
	RegisterFactory("headerlimit", func(params map[string]string) (Processor, error) {
		max := int64(64 * 1024)
		if raw, ok := params["max_bytes"]; ok {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("invalid max_bytes %q", raw)
			}
			max = v
		}
		return &HeaderLimitProcessor{MaxBytes: max}, nil
	})
}

// StampProcessor prepends an X-Processed-By header so delivered
// messages record which server handled them.
type StampProcessor struct {
	Server string
}

func (s *StampProcessor) Name() string { return "stamp" }

func (s *StampProcessor) Process(ctx Context) (Context, error) {
	header := fmt.Sprintf("X-Processed-By: %s\r\n", s.Server)
	ctx.Content = append([]byte(header), ctx.Content...)
	return ctx, nil
}

// HeaderLimitProcessor rejects messages whose header section exceeds
// the configured size. The header section ends at the first blank
// line; a message with no blank line is all header.
type HeaderLimitProcessor struct {
	MaxBytes int64
}

func (h *HeaderLimitProcessor) Name() string { return "headerlimit" }

func (h *HeaderLimitProcessor) Process(ctx Context) (Context, error) {
	header := ctx.Content
	if i := bytes.Index(ctx.Content, []byte("\r\n\r\n")); i >= 0 {
		header = ctx.Content[:i]
	} else if i := bytes.Index(ctx.Content, []byte("\n\n")); i >= 0 {
		header = ctx.Content[:i]
	}
	if int64(len(header)) > h.MaxBytes {
		return ctx, fmt.Errorf("header section is %d bytes, limit %d", len(header), h.MaxBytes)
	}
	return ctx, nil
}
