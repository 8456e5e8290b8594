package bridge_test

import (
	"context"
	"io"
	"os"
	"strings"

	bridge "github.com/felixgeelhaar/mcp-bridge"
)

func ExampleServeStdio() {
	echo := bridge.EngineFunc(func(ctx context.Context, stream io.ReadWriter) error {
		_, err := io.Copy(stream, stream)
		return err
	})

	_ = bridge.ServeStdio(context.Background(),
		func() bridge.Engine { return echo },
		bridge.WithStdin(strings.NewReader("{\"hello\":\"world\"}\n")),
		bridge.WithStdout(os.Stdout),
	)
	// Output: {"hello":"world"}
}

func ExampleServeSSE() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	echo := bridge.EngineFunc(func(ctx context.Context, stream io.ReadWriter) error {
		_, err := io.Copy(stream, stream)
		return err
	})

	go func() {
		_ = bridge.ServeSSE(ctx, "127.0.0.1:0", func() bridge.Engine { return echo },
			bridge.WithPath("/events"),
			bridge.WithSubmitRateLimit(100, 20),
		)
	}()
}
