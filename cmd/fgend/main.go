package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/abiosoft/ishell"

	"github.com/European-XFEL/FunctionGenerator/internal/device"
	"github.com/European-XFEL/FunctionGenerator/internal/journal"
	"github.com/European-XFEL/FunctionGenerator/internal/logger"
	"github.com/European-XFEL/FunctionGenerator/internal/models"
	"github.com/European-XFEL/FunctionGenerator/internal/scpi"
	"github.com/European-XFEL/FunctionGenerator/internal/server"
	"github.com/European-XFEL/FunctionGenerator/internal/transport"
)

func main() {
	configPath := flag.String("config", "./fgen.yaml", "Path to config file")
	model := flag.String("model", "", "Instrument model, overrides config ("+strings.Join(models.Names(), ", ")+")")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	demo := flag.Bool("demo", false, "Run against a simulated instrument")
	shell := flag.Bool("shell", false, "Start an interactive shell instead of the HTTP server")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] fgend starting")

	cfg := server.LoadConfig(*configPath)

	if *model != "" {
		cfg.Instrument.Model = *model
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *demo {
		cfg.Instrument.Transport.Type = "sim"
	}

	sch, err := models.New(cfg.Instrument.Model)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	var tr transport.Transport
	if cfg.Instrument.Transport.Type == "sim" {
		tr = transport.NewSim(sch)
	} else {
		tr, err = transport.New(cfg.Instrument.Transport)
		if err != nil {
			log.Fatalf("[main] %v", err)
		}
	}

	dev := device.New(sch, tr, cfg.DeviceConfig())

	// models with a catalog parameter get their waveform list discovered as
	// soon as the link is up
	if _, err := sch.Lookup("arbs", ""); err == nil {
		arbPath := cfg.Instrument.ArbPath
		dev.OnStateChange(func(s device.ConnState) {
			if s != device.StateConnected {
				return
			}
			go func() {
				if _, err := dev.RefreshCatalog("arbs", arbPath); err != nil {
					log.Printf("[main] catalog discovery: %v", err)
				}
			}()
		})
	}

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	dev.Connect(ctx)
	defer dev.Close()

	if *shell {
		runShell(dev, cfg)
		return
	}

	var jrn *journal.Journal
	if cfg.Journal.Enabled {
		jrn, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Fatalf("[main] %v", err)
		}
		defer jrn.Close()
	}

	lg := logger.New(cfg.Logging, sch)

	srv := server.New(cfg, dev, jrn, lg)
	if err := srv.Run(ctx); err != nil {
		log.Printf("[main] server exited: %v", err)
	}
}

// runShell drops into an interactive prompt for poking at the instrument.
func runShell(dev *device.Device, cfg *server.Config) {
	sh := ishell.New()
	sh.Println("function generator shell, type 'help' for commands")

	sh.AddCmd(&ishell.Cmd{
		Name: "state",
		Help: "show connection state and last status",
		Func: func(c *ishell.Context) {
			c.Printf("%s  %s\n", dev.State(), dev.Status())
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "get",
		Help: "get <key> [channel] - read the cached value of a parameter",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Println("usage: get <key> [channel]")
				return
			}
			channel := ""
			if len(c.Args) > 1 {
				channel = c.Args[1]
			}
			v, err := dev.Get(c.Args[0], channel)
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(v.String())
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "query",
		Help: "query <key> [channel] - read a parameter from the hardware",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Println("usage: query <key> [channel]")
				return
			}
			channel := ""
			if len(c.Args) > 1 {
				channel = c.Args[1]
			}
			v, err := dev.Query(c.Args[0], channel)
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(v.String())
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "set",
		Help: "set <key> <value> [channel] - write a parameter",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Println("usage: set <key> <value> [channel]")
				return
			}
			channel := ""
			if len(c.Args) > 2 {
				channel = c.Args[2]
			}
			res, err := dev.Set(c.Args[0], channel, scpi.Text(c.Args[1]))
			if err != nil {
				c.Err(err)
				return
			}
			if res.Mismatch {
				c.Printf("%s (hardware answered differently)\n", res.Value.String())
				return
			}
			c.Println(res.Value.String())
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "values",
		Help: "dump all cached parameter values",
		Func: func(c *ishell.Context) {
			vals := dev.Values()
			ids := make([]string, 0, len(vals))
			for id := range vals {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				c.Printf("%-40s %s\n", id, vals[id].Text)
			}
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "catalog",
		Help: "catalog [path] - refresh and list the waveform catalog",
		Func: func(c *ishell.Context) {
			path := cfg.Instrument.ArbPath
			if len(c.Args) > 0 {
				path = c.Args[0]
			}
			arbs, err := dev.RefreshCatalog("arbs", path)
			if err != nil {
				c.Err(err)
				return
			}
			for _, a := range arbs {
				c.Println(a)
			}
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "connect",
		Help: "restart the connection supervisor",
		Func: func(c *ishell.Context) {
			dev.Connect(context.Background())
			c.Println(dev.State().String())
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "schema",
		Help: "list the parameters of the current model",
		Func: func(c *ishell.Context) {
			for _, b := range dev.Schema().Bindings() {
				d := b.Descriptor
				extra := ""
				if len(d.Options) > 0 {
					extra = fmt.Sprintf(" {%s}", strings.Join(d.Options, ","))
				}
				c.Printf("%-40s %s%s\n", b.ID(), d.Kind, extra)
			}
		},
	})

	sh.Run()
}
