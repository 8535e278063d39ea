// Command engine is the embeddable execution engine's standalone
// front end: load a compiled bytecode artifact, run it to completion,
// disassemble it, or step through it interactively. It replaces the
// teacher's cmd/smog, which drove a text-source REPL over its own
// Smalltalk VM; this CLI instead drives Process.Step over an artifact
// the external compiler already produced (spec §6), the same
// run/disassemble/repl surface reshaped around the new execution
// model.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/julienschmidt/httprouter"
	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"github.com/rs/cors"
	"gopkg.in/urfave/cli.v1"

	"github.com/kristofer/scriptvm/internal/enginelog"
	"github.com/kristofer/scriptvm/pkg/bytecode"
	"github.com/kristofer/scriptvm/pkg/entity"
	"github.com/kristofer/scriptvm/pkg/errs"
	"github.com/kristofer/scriptvm/pkg/gcheap"
	"github.com/kristofer/scriptvm/pkg/loader"
	"github.com/kristofer/scriptvm/pkg/process"
	"github.com/kristofer/scriptvm/pkg/symtab"
	"github.com/kristofer/scriptvm/pkg/sysio"
	"github.com/kristofer/scriptvm/pkg/values"
)

const version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "engine"
	app.Usage = "run, disassemble, and step compiled bytecode artifacts"
	app.Version = version
	app.Commands = []cli.Command{runCommand, disasmCommand, replCommand, serveCommand}

	if err := app.Run(os.Args); err != nil {
		enginelog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}
}

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "run a compiled bytecode artifact to completion",
	ArgsUsage: "<artifact.json>",
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.NewExitError("missing artifact path", 1)
		}
		_, arena, p, sys, err := loadProgram(c.Args().Get(0))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}

		status := drive(arena, p, sys, 0)
		reportOutcome(p, status)
		if status == process.StatusErrored {
			return cli.NewExitError("process terminated with an error", 1)
		}
		return nil
	},
}

var disasmCommand = cli.Command{
	Name:      "disasm",
	Usage:     "print a human-readable disassembly of a compiled artifact",
	ArgsUsage: "<artifact.json>",
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.NewExitError("missing artifact path", 1)
		}
		bc, err := loader.LoadArtifactFile(c.Args().Get(0))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		fmt.Print(bytecode.Disassemble(bc, nil))
		return nil
	},
}

var replCommand = cli.Command{
	Name:      "repl",
	Usage:     "interactively step through a compiled artifact",
	ArgsUsage: "<artifact.json>",
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.NewExitError("missing artifact path", 1)
		}
		bc, arena, p, sys, err := loadProgram(c.Args().Get(0))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		runDebugger(bc, arena, p, sys)
		return nil
	},
}

var serveCommand = cli.Command{
	Name:  "serve",
	Usage: "serve a small HTTP API for submitting and running artifacts",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "addr", Value: ":8470", Usage: "listen address"},
	},
	Action: func(c *cli.Context) error {
		return serve(c.String("addr"))
	},
}

// loadProgram decodes an artifact, materializes its globals/entities
// onto a fresh Arena, and wires a top-level Process against the
// Bytecode's instruction stream and string pool, bound to the first
// declared entity (or "stage" if the artifact declares none — the
// artifact format has no further notion of which entity a given
// script belongs to, so this CLI runs exactly one Process per
// artifact).
func loadProgram(path string) (*bytecode.Bytecode, *gcheap.Arena, *process.Process, *sysio.LocalSystem, error) {
	bc, err := loader.LoadArtifactFile(path)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load artifact: %w", err)
	}

	arena := gcheap.New()
	world, err := loader.Materialize(arena, bc.Data)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("materialize artifact: %w", err)
	}

	entityName := "stage"
	if len(bc.Data.Entities) > 0 {
		entityName = bc.Data.Entities[0].Name
	}

	sys := sysio.NewLocalSystem(sysio.TimeArbitrary)
	registerDefaultHandlers(sys)

	fields := entityFields(arena, world, entityName)
	p := process.New(bc.Data.ProjectName, entityName, bc.Code, bc.Strings, world.Global, fields)
	return bc, arena, p, sys, nil
}

// entityFields resolves the field scope a Process should root its
// locals in: the named entity's own Fields table if the artifact
// declared one (already parented to Global.Vars by loader.Materialize),
// or a fresh empty scope chained directly to Global.Vars for a
// fieldless top-level script.
func entityFields(arena *gcheap.Arena, world *loader.World, name string) *symtab.SymbolTable {
	h, ok := world.Entities[name]
	if !ok {
		return symtab.New(world.Global.Vars)
	}
	var fields *symtab.SymbolTable
	arena.Mutate(func(w *gcheap.Witness) {
		if e, ok := w.Get(h).(*entity.Entity); ok {
			fields = e.Fields
		}
	})
	if fields == nil {
		fields = symtab.New(world.Global.Vars)
	}
	return fields
}

// registerDefaultHandlers wires the CLI's stdin/stdout as the host
// half of the Print/Input requests Process.Step routes through
// sysio.System, mirroring the teacher's REPL, which read from
// os.Stdin and wrote straight to os.Stdout.
func registerDefaultHandlers(sys *sysio.LocalSystem) {
	useColor := isatty.IsTerminal(os.Stdout.Fd())
	stdin := bufio.NewReader(os.Stdin)

	sys.RegisterCommandHandler(sysio.FeaturePrint, func(ctx context.Context, cmd sysio.Command, entity string) error {
		text := displayValue(cmd.PrintValue)
		switch cmd.PrintStyle {
		case sysio.PrintSay:
			if useColor {
				color.Cyan("%s: %s", entity, text)
			} else {
				fmt.Printf("%s: %s\n", entity, text)
			}
		case sysio.PrintThink:
			if useColor {
				color.Yellow("%s (thinking): %s", entity, text)
			} else {
				fmt.Printf("%s (thinking): %s\n", entity, text)
			}
		default:
			fmt.Println(text)
		}
		return nil
	})

	sys.RegisterRequestHandler(sysio.FeatureInput, func(ctx context.Context, req sysio.Request, entity string) (values.Value, error) {
		if req.Prompt != nil {
			fmt.Print(*req.Prompt)
		}
		line, _ := stdin.ReadString('\n')
		return values.Str(strings.TrimRight(line, "\r\n")), nil
	})
}

// displayValue renders a PrintValue the way a host console would,
// falling back to the Kind tag for values with no simple text form.
func displayValue(v *values.Value) string {
	if v == nil {
		return ""
	}
	if s, ok := v.AsString(); ok {
		return s
	}
	if n, ok := v.AsNumber(); ok {
		return n.String()
	}
	if b, ok := v.AsBool(); ok {
		return strconv.FormatBool(b)
	}
	return v.Kind().String()
}

// drive steps p until it reaches a terminal status or has made
// maxSteps Step calls. A Yield just moves on to the next Step, since
// there is only one process to schedule. A zero or negative maxSteps
// runs unbounded; the serve subcommand's run handler passes a positive
// bound so a looping artifact cannot hold the request forever.
func drive(arena *gcheap.Arena, p *process.Process, sys *sysio.LocalSystem, maxSteps int) process.Status {
	var status process.Status
	for i := 0; maxSteps <= 0 || i < maxSteps; i++ {
		arena.Mutate(func(w *gcheap.Witness) {
			status = p.Step(w, sys)
		})
		switch status {
		case process.StatusTerminated, process.StatusErrored:
			return status
		case process.StatusBroadcast:
			// No sibling processes to fan out to in this single-Process
			// CLI; treat a broadcast as already satisfied so execution
			// can proceed past it.
			if p.BroadcastWait {
				b, grants := sysio.NewBarrier(0)
				_ = grants
				p.ParkOnBarrier(b.Condition())
			}
		}
	}
	return status
}

func reportOutcome(p *process.Process, status process.Status) {
	switch status {
	case process.StatusTerminated:
		fmt.Printf("=> %s\n", displayValue(&p.Result))
	case process.StatusErrored:
		summary := errs.Extract(p.FailCause, p.FailPos, p.Frames())
		fmt.Fprintln(os.Stderr, summary.String())
	}
}

// runDebugger is a liner-driven REPL over Process.Step, the direct
// descendant of the teacher's pkg/vm/debugger.go breakpoint/step-mode
// design, ported from VM instruction pointers to Process positions.
func runDebugger(bc *bytecode.Bytecode, arena *gcheap.Arena, p *process.Process, sys *sysio.LocalSystem) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	breakpoints := map[int]bool{}
	fmt.Println("engine repl — step/continue/break <n>/stack/quit")

	for {
		input, err := line.Prompt(fmt.Sprintf("(pos %d)> ", p.Pos))
		if err != nil {
			return
		}
		line.AppendHistory(input)
		fields := strings.Fields(input)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return
		case "break":
			if len(fields) < 2 {
				fmt.Println("usage: break <instruction index>")
				continue
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("not a number:", fields[1])
				continue
			}
			breakpoints[n] = true
		case "step":
			var status process.Status
			arena.Mutate(func(w *gcheap.Witness) { status = p.Step(w, sys) })
			printStatus(p, status)
		case "continue":
			status := driveUntilBreak(arena, p, sys, breakpoints)
			printStatus(p, status)
		case "stack":
			for i, v := range p.Stack {
				fmt.Printf("  [%d] %s\n", i, displayValue(&v))
			}
		case "disasm":
			fmt.Print(bytecode.Disassemble(bc, nil))
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

func driveUntilBreak(arena *gcheap.Arena, p *process.Process, sys *sysio.LocalSystem, breakpoints map[int]bool) process.Status {
	var status process.Status
	for {
		if breakpoints[p.Pos] {
			return process.StatusYield
		}
		arena.Mutate(func(w *gcheap.Witness) { status = p.Step(w, sys) })
		switch status {
		case process.StatusTerminated, process.StatusErrored:
			return status
		case process.StatusBroadcast:
			if p.BroadcastWait {
				b, _ := sysio.NewBarrier(0)
				p.ParkOnBarrier(b.Condition())
			}
		}
	}
}

func printStatus(p *process.Process, status process.Status) {
	switch status {
	case process.StatusTerminated:
		fmt.Printf("terminated => %s\n", displayValue(&p.Result))
	case process.StatusErrored:
		summary := errs.Extract(p.FailCause, p.FailPos, p.Frames())
		fmt.Println(summary.String())
	default:
		fmt.Printf("pos=%d status=%v\n", p.Pos, status)
	}
}

// serve exposes POST /run over HTTP: a JSON-encoded artifact body is
// materialized and driven to completion (bounded, since an HTTP
// request cannot wait on a host's own Input/Rpc handlers the way the
// CLI's stdin does), returning the terminal status and result/error.
func serve(addr string) error {
	router := httprouter.New()
	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.POST("/run", handleRun)

	handler := cors.Default().Handler(router)
	enginelog.Info("serving", "addr", addr)
	return http.ListenAndServe(addr, handler)
}

type runResponse struct {
	Status string `json:"status"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func handleRun(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	bc, err := loader.ReadArtifact(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	arena := gcheap.New()
	world, err := loader.Materialize(arena, bc.Data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entityName := "stage"
	if len(bc.Data.Entities) > 0 {
		entityName = bc.Data.Entities[0].Name
	}
	sys := sysio.NewLocalSystem(sysio.TimeArbitrary)
	fields := entityFields(arena, world, entityName)
	p := process.New(bc.Data.ProjectName, entityName, bc.Code, bc.Strings, world.Global, fields)

	const maxSteps = 1_000_000
	status := drive(arena, p, sys, maxSteps)

	resp := runResponse{Status: status.String()}
	switch status {
	case process.StatusTerminated:
		resp.Result = displayValue(&p.Result)
	case process.StatusErrored:
		resp.Error = errs.Extract(p.FailCause, p.FailPos, p.Frames()).String()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
