package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/playht/playht-go-sdk/credentials"
	"github.com/playht/playht-go-sdk/lease"
	"github.com/playht/playht-go-sdk/logger"
	"github.com/playht/playht-go-sdk/pkg/config"
	"github.com/playht/playht-go-sdk/sentence"
	"github.com/playht/playht-go-sdk/tts"
)

const outputFilePerm = 0o600

type sayOptions struct {
	config      string
	engine      string
	voice       string
	out         string
	stdinStream bool
}

func newSayCmd() *cobra.Command {
	var o sayOptions
	cmd := &cobra.Command{
		Use:   "say [text...]",
		Short: "Synthesize text, or stdin when no text is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSay(cmd.Context(), o, strings.Join(args, " "), cmd.InOrStdin())
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.config, "config", "c", "", "YAML configuration file")
	f.StringVar(&o.engine, "engine", "", "voice engine, overriding the configuration")
	f.StringVar(&o.voice, "voice", "", "voice ID, overriding the configuration")
	f.StringVarP(&o.out, "out", "o", "out.mp3", "output file, or - for stdout")
	f.BoolVar(&o.stdinStream, "stdin-stream", false, "synthesize stdin line by line as it arrives")
	return cmd
}

func runSay(ctx context.Context, o sayOptions, text string, stdin io.Reader) error {
	cfg, err := config.Load(o.config)
	if err != nil {
		return err
	}
	if o.voice != "" {
		cfg.Voice.Voice = o.voice
	}
	if err := logger.Configure(cfg.Logging.Spec()); err != nil {
		return err
	}

	shutdown, err := startObservability(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdown()

	client, closeShared, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closeShared()
	defer client.Close()

	opts, err := cfg.CallOptions(o.engine)
	if err != nil {
		return err
	}

	var audio io.ReadCloser
	if o.stdinStream {
		audio, err = client.StreamText(ctx, deltas(ctx, stdin), opts)
	} else {
		if text == "" {
			b, rerr := io.ReadAll(stdin)
			if rerr != nil {
				return rerr
			}
			text = string(b)
		}
		audio, err = client.Stream(ctx, text, opts)
	}
	if err != nil {
		return err
	}
	defer audio.Close()

	return write(o.out, audio)
}

// newClient builds a client from cfg, sharing credentials through redis when
// one is configured. The returned func closes the redis connection.
func newClient(cfg *config.Config) (*tts.Client, func(), error) {
	cred, err := credentials.Resolve(cfg.ResolverConfig())
	if err != nil {
		return nil, nil, err
	}
	clientOpts, err := cfg.ClientOptions()
	if err != nil {
		return nil, nil, err
	}

	closeShared := func() {}
	if r := cfg.Redis; r.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: r.Addr, Password: r.Password, DB: r.DB})
		closeShared = func() { _ = rdb.Close() }
		clientOpts = append(clientOpts, tts.WithSharedCache(lease.NewRedisCache(rdb, lease.WithPrefix(r.Prefix))))
	}

	client, err := tts.New(cred.UserID(), cred.APIKey(), clientOpts...)
	if err != nil {
		closeShared()
		return nil, nil, err
	}
	return client, closeShared, nil
}

// deltas forwards r line by line as live text.
func deltas(ctx context.Context, r io.Reader) <-chan sentence.Delta {
	ch := make(chan sentence.Delta)
	go func() {
		defer close(ch)
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				select {
				case ch <- sentence.Delta{Text: line}:
				case <-ctx.Done():
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case ch <- sentence.Delta{Err: err}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return ch
}

func write(path string, audio io.Reader) error {
	if path == "-" {
		_, err := io.Copy(os.Stdout, audio)
		return err
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, outputFilePerm)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, audio)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	logger.Info("audio written", "path", path, "bytes", n)
	return nil
}
