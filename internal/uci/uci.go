// Package uci speaks the Universal Chess Interface protocol on top of the
// search engine.
package uci

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/hailam/kestrel/internal/board"
	"github.com/hailam/kestrel/internal/engine"
)

const (
	engineName   = "Kestrel"
	engineAuthor = "the Kestrel authors"
)

// writer serialises protocol output from the reader loop and the search
// goroutines.
type writer struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *writer) println(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.w, format+"\n", args...)
}

// UCI implements the Universal Chess Interface protocol.
type UCI struct {
	engine   *engine.Engine
	position *board.Position
	out      *writer

	store       engine.AnalysisStore
	useAnalysis bool

	searchDone   chan struct{}
	cancelSearch context.CancelFunc

	profileFile *os.File
}

// New creates a protocol handler writing to out.
func New(eng *engine.Engine, out io.Writer) *UCI {
	return &UCI{
		engine:   eng,
		position: board.NewPosition(),
		out:      &writer{w: out},
	}
}

// SetAnalysisStore makes s available to the UseAnalysis option and
// enables it when enabled is set.
func (u *UCI) SetAnalysisStore(s engine.AnalysisStore, enabled bool) {
	u.store = s
	u.setUseAnalysis(enabled)
}

func (u *UCI) setUseAnalysis(enabled bool) {
	u.useAnalysis = enabled && u.store != nil
	if u.useAnalysis {
		u.engine.SetAnalysisStore(u.store)
	} else {
		u.engine.SetAnalysisStore(nil)
	}
}

// Run reads commands from in until "quit" or end of input.
func (u *UCI) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if !u.Execute(ctx, scanner.Text()) {
			return nil
		}
	}
	u.handleStop()
	u.stopProfile()
	return scanner.Err()
}

// Execute handles one command line. It returns false after "quit".
func (u *UCI) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd, args := parts[0], parts[1:]
	log.Trace().Str("cmd", cmd).Strs("args", args).Msg("uci-command")

	switch cmd {
	case "uci":
		u.handleUCI()
	case "isready":
		u.out.println("readyok")
	case "ucinewgame":
		u.handleNewGame()
	case "position":
		u.handlePosition(args)
	case "go":
		u.handleGo(ctx, args)
	case "stop":
		u.handleStop()
	case "quit":
		u.handleStop()
		u.stopProfile()
		return false
	case "setoption":
		u.handleSetOption(args)
	// Debug commands
	case "d":
		u.out.println("%s", u.position.String())
	case "eval":
		u.out.println("eval %s (side to move)", engine.ScoreToString(u.engine.Evaluate(u.position)))
	case "perft":
		u.handlePerft(args)
	default:
		log.Debug().Str("cmd", cmd).Msg("unknown-command")
	}
	return true
}

// Wait blocks until the running search, if any, has printed its bestmove.
func (u *UCI) Wait() {
	if u.searchDone != nil {
		<-u.searchDone
	}
}

func (u *UCI) handleUCI() {
	u.out.println("id name %s", engineName)
	u.out.println("id author %s", engineAuthor)
	u.out.println("")
	u.out.println("option name Hash type spin default 64 min 1 max 65536")
	u.out.println("option name Threads type spin default %d min 1 max 1024", u.engine.Threads())
	u.out.println("option name Clear Hash type button")
	u.out.println("option name MoveOverhead type spin default 10 min 0 max 5000")
	u.out.println("option name UseAnalysis type check default %t", u.useAnalysis)
	u.out.println("option name CPUProfile type string default <empty>")
	u.out.println("uciok")
}

func (u *UCI) handleNewGame() {
	u.handleStop()
	u.engine.Clear()
	u.position = board.NewPosition()
}

// handlePosition parses and sets up a position.
// Formats:
//   - position startpos
//   - position startpos moves e2e4 e7e5
//   - position fen <fen>
//   - position fen <fen> moves e2e4
func (u *UCI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	movesAt := lo.IndexOf(args, "moves")
	end := len(args)
	if movesAt >= 0 {
		end = movesAt
	}

	var pos *board.Position
	switch args[0] {
	case "startpos":
		pos = board.NewPosition()
	case "fen":
		p, err := board.ParseFEN(strings.Join(args[1:end], " "))
		if err != nil {
			log.Warn().Err(err).Msg("invalid-fen")
			return
		}
		pos = p
	default:
		return
	}

	if movesAt >= 0 {
		for _, s := range args[movesAt+1:] {
			m, err := board.ParseMove(s, pos)
			if err != nil {
				log.Warn().Err(err).Str("move", s).Msg("invalid-move")
				return
			}
			pos.MakeMove(m)
		}
	}
	u.position = pos
}

// parseLimits converts "go" arguments into search limits.
func parseLimits(args []string) engine.SearchLimits {
	var limits engine.SearchLimits
	ms := func(s string) time.Duration {
		n, _ := strconv.Atoi(s)
		return time.Duration(max(n, 0)) * time.Millisecond
	}

	for i := 0; i < len(args); i++ {
		next := ""
		if i+1 < len(args) {
			next = args[i+1]
		}
		switch args[i] {
		case "infinite":
			limits.Infinite = true
			continue
		case "depth":
			limits.Depth, _ = strconv.Atoi(next)
		case "nodes":
			limits.Nodes, _ = strconv.ParseUint(next, 10, 64)
		case "movetime":
			limits.MoveTime = ms(next)
		case "wtime":
			limits.Time[board.White] = ms(next)
		case "btime":
			limits.Time[board.Black] = ms(next)
		case "winc":
			limits.Inc[board.White] = ms(next)
		case "binc":
			limits.Inc[board.Black] = ms(next)
		case "movestogo":
			limits.MovesToGo, _ = strconv.Atoi(next)
		default:
			continue
		}
		i++
	}
	return limits
}

func (u *UCI) handleGo(ctx context.Context, args []string) {
	u.handleStop()

	limits := parseLimits(args)
	pos := u.position.Copy()
	u.engine.OnInfo = func(info engine.SearchInfo) {
		u.sendInfo(pos, info)
	}

	// The context is created here, not in the search goroutine, so a stop
	// that arrives before the search starts is not lost.
	searchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	u.searchDone = done
	u.cancelSearch = cancel
	go func() {
		defer close(done)
		defer cancel()
		res := u.engine.Search(searchCtx, pos, limits)
		switch {
		case res.BestMove == board.NoMove:
			u.out.println("bestmove 0000")
		case res.Ponder != board.NoMove:
			u.out.println("bestmove %s ponder %s", res.BestMove, res.Ponder)
		default:
			u.out.println("bestmove %s", res.BestMove)
		}
	}()
}

// legalPrefix returns the longest prefix of pv that is playable from pos.
func legalPrefix(pos *board.Position, pv []board.Move) []board.Move {
	p := pos.Copy()
	for i, m := range pv {
		if !p.IsLegal(m) {
			return pv[:i]
		}
		p.MakeMove(m)
	}
	return pv
}

func (u *UCI) sendInfo(pos *board.Position, info engine.SearchInfo) {
	parts := []string{
		fmt.Sprintf("depth %d", info.Depth),
		fmt.Sprintf("seldepth %d", info.SelDepth),
		"score " + engine.ScoreToString(info.Score),
		fmt.Sprintf("nodes %d", info.Nodes),
		fmt.Sprintf("nps %d", info.NPS),
		fmt.Sprintf("hashfull %d", info.HashFull),
		fmt.Sprintf("time %d", info.Time.Milliseconds()),
	}
	if pv := legalPrefix(pos, info.PV); len(pv) > 0 {
		parts = append(parts, "pv "+strings.Join(lo.Map(pv, func(m board.Move, _ int) string {
			return m.String()
		}), " "))
	}
	u.out.println("info %s", strings.Join(parts, " "))
}

// handleStop stops the current search and waits for its bestmove.
func (u *UCI) handleStop() {
	if u.searchDone == nil {
		return
	}
	u.cancelSearch()
	u.engine.Stop()
	<-u.searchDone
	u.searchDone = nil
	u.cancelSearch = nil
}

// parseOption splits "name <name...> value <value...>".
func parseOption(args []string) (name, value string) {
	valueAt := lo.IndexOf(args, "value")
	nameEnd := len(args)
	if valueAt >= 0 {
		nameEnd = valueAt
		value = strings.Join(args[valueAt+1:], " ")
	}
	if len(args) > 0 && args[0] == "name" {
		name = strings.Join(args[1:nameEnd], " ")
	}
	return name, value
}

func (u *UCI) handleSetOption(args []string) {
	name, value := parseOption(args)
	log.Debug().Str("name", name).Str("value", value).Msg("setoption")

	switch strings.ToLower(name) {
	case "hash":
		if mb, err := strconv.Atoi(value); err == nil && mb >= 1 {
			u.handleStop()
			u.engine.SetHash(mb)
		}
	case "threads":
		if n, err := strconv.Atoi(value); err == nil && n >= 1 {
			u.handleStop()
			u.engine.SetThreads(n)
		}
	case "clear hash":
		u.handleStop()
		u.engine.ClearHash()
	case "moveoverhead":
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			u.engine.SetMoveOverhead(time.Duration(n) * time.Millisecond)
		}
	case "useanalysis":
		u.setUseAnalysis(strings.EqualFold(value, "true"))
		if u.useAnalysis != strings.EqualFold(value, "true") {
			log.Warn().Msg("analysis-store-unavailable")
		}
	case "cpuprofile":
		u.stopProfile()
		if value != "" && value != "stop" && value != "<empty>" {
			if err := u.startProfile(value); err != nil {
				log.Warn().Err(err).Msg("cpu-profile-failed")
			}
		}
	default:
		log.Debug().Str("name", name).Msg("unknown-option")
	}
}

func (u *UCI) startProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return err
	}
	u.profileFile = f
	log.Info().Str("path", path).Msg("cpu-profile-started")
	return nil
}

func (u *UCI) stopProfile() {
	if u.profileFile == nil {
		return
	}
	pprof.StopCPUProfile()
	u.profileFile.Close()
	u.profileFile = nil
	log.Info().Msg("cpu-profile-saved")
}

func (u *UCI) handlePerft(args []string) {
	depth := 5
	if len(args) > 0 {
		if d, err := strconv.Atoi(args[0]); err == nil {
			depth = d
		}
	}

	start := time.Now()
	nodes := u.engine.Perft(u.position.Copy(), depth)
	elapsed := time.Since(start)

	u.out.println("Nodes: %d", nodes)
	u.out.println("Time: %v", elapsed)
	if elapsed > 0 {
		u.out.println("NPS: %.0f", float64(nodes)/elapsed.Seconds())
	}
}
