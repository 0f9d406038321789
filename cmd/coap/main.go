// Package main provides a small CLI driving the engine from the command
// line: a "serve" mode hosting a demo resource tree, and "get"/"observe"
// client modes, mirroring the teacher's cmd/coap request tool and
// cmd/proxy server in one binary instead of two.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloudbridge/coap/client"
	"github.com/cloudbridge/coap/endpoint"
	"github.com/cloudbridge/coap/log"
	"github.com/cloudbridge/coap/message"
	"github.com/cloudbridge/coap/message/codes"
	"github.com/cloudbridge/coap/netcoap"
	"github.com/cloudbridge/coap/resource"
	"github.com/cloudbridge/coap/transcode"
)

var (
	flagListen  string
	flagRemote  string
	flagPath    string
	flagVerbose bool
)

func init() {
	flag.StringVar(&flagListen, "listen", ":5683", "address to listen on in serve mode")
	flag.StringVar(&flagRemote, "remote", "127.0.0.1:5683", "remote address for get/observe modes")
	flag.StringVar(&flagPath, "path", "sensors/temp", "resource path for get/observe modes")
	flag.BoolVar(&flagVerbose, "v", false, "verbose logging")
}

func main() {
	flag.Parse()
	mode := "serve"
	if flag.NArg() > 0 {
		mode = flag.Arg(0)
	}

	logger := logrus.New()
	if flagVerbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	lg := log.FromLogrus(logger)

	var err error
	switch mode {
	case "serve":
		err = runServe(lg)
	case "get":
		err = runGet(lg)
	case "observe":
		err = runObserve(lg)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q (want serve, get, observe)\n", mode)
		os.Exit(2)
	}
	if err != nil {
		logger.WithError(err).Fatal("coap: exiting")
	}
}

func buildDemoTree() *resource.Resource {
	root := resource.New("")
	temp := root.Add("sensors/temp")
	temp.Observable = true
	temp.Attrs = resource.Attributes{Title: "ambient temperature", ResourceTypes: []string{"temperature"}, ContentType: message.TextPlain}
	temp.Get(func(ctx *resource.RequestContext) {
		ctx.Respond(codes.Content, []byte("21.0 C"), message.TextPlain)
	})

	codec, _ := transcode.New(nil)
	resource.MountDebugEcho(root, codec)
	resource.MountWellKnownCore(root)
	return root
}

func runServe(lg log.Logger) error {
	root := buildDemoTree()
	deliverer := resource.NewServerMessageDeliverer(root, lg)

	ch := netcoap.NewUDPChannel(flagListen, netcoap.DefaultUDPConfig())
	ep := endpoint.New(ch, deliverer, deliverer, endpoint.DefaultConfig(), lg)
	deliverer.SetSender(ep.Stack())

	if err := ep.Start(); err != nil {
		return fmt.Errorf("start endpoint: %w", err)
	}
	defer ep.Stop()

	lg.Infof("coap: serving %s", flagListen)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	return nil
}

func newClient(lg log.Logger) (*client.Client, *endpoint.Endpoint, error) {
	ch := netcoap.NewUDPChannel(":0", netcoap.DefaultUDPConfig())
	c := client.New(nil)
	ep := endpoint.New(ch, c, nil, endpoint.DefaultConfig(), lg)
	c.Attach(ep)
	if err := ep.Start(); err != nil {
		return nil, nil, fmt.Errorf("start endpoint: %w", err)
	}
	return c, ep, nil
}

func runGet(lg log.Logger) error {
	c, ep, err := newClient(lg)
	if err != nil {
		return err
	}
	defer ep.Stop()

	remote, err := net.ResolveUDPAddr("udp", flagRemote)
	if err != nil {
		return fmt.Errorf("resolve remote: %w", err)
	}
	req := &message.Message{Type: message.Confirmable, Code: codes.GET}
	req.Options = req.Options.SetPath(flagPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := c.Do(ctx, "coap://"+flagRemote+"/"+flagPath, req, remote)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	fmt.Printf("%s %s\n", resp.Code, resp.Payload)
	return nil
}

func runObserve(lg log.Logger) error {
	c, ep, err := newClient(lg)
	if err != nil {
		return err
	}
	defer ep.Stop()

	remote, err := net.ResolveUDPAddr("udp", flagRemote)
	if err != nil {
		return fmt.Errorf("resolve remote: %w", err)
	}
	req := &message.Message{Type: message.Confirmable, Code: codes.GET}
	req.Options = req.Options.SetPath(flagPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifyCh, stop, err := c.Observe(ctx, "coap://"+flagRemote+"/"+flagPath, req, remote)
	if err != nil {
		return fmt.Errorf("observe: %w", err)
	}
	defer stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case notif, ok := <-notifyCh:
			if !ok {
				return nil
			}
			fmt.Printf("notify: %s\n", notif.Payload)
		case <-sig:
			return nil
		}
	}
}
