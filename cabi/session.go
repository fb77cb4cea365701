package main

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/openfluke/typepack/config"
	"github.com/openfluke/typepack/gpu"
	"github.com/openfluke/typepack/host"
	"github.com/openfluke/typepack/layout"
	"github.com/openfluke/typepack/offset"
	"github.com/openfluke/typepack/pup"
)

// initOptions overrides the environment-derived configuration.
type initOptions struct {
	Backend         string `json:"backend"`
	MaxNestingLevel *int   `json:"max_nesting_level"`
	HostWorkers     int    `json:"host_workers"`
}

type typeInfo struct {
	Handle      int32  `json:"handle"`
	Key         string `json:"key"`
	Layout      string `json:"layout"`
	NumElements int64  `json:"num_elements"`
	Extent      int64  `json:"extent"`
	Pack        string `json:"pack,omitempty"`
	Unpack      string `json:"unpack,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// session is the engine and handle table behind the exported functions.
type session struct {
	mu    sync.Mutex
	cfg   config.Config
	dev   pup.Device
	eng   *pup.Engine
	types map[int32]*pup.Type
	next  int32
}

func openSession(optsJSON string) (*session, error) {
	cfg, err := config.Load(config.LoadOptions{Defaults: config.DefaultConfig()})
	if err != nil {
		return nil, err
	}
	if optsJSON != "" {
		var opts initOptions
		if err := json.Unmarshal([]byte(optsJSON), &opts); err != nil {
			return nil, fmt.Errorf("invalid options: %w", err)
		}
		if opts.Backend != "" {
			if cfg.Backend, err = config.NormalizeBackend(opts.Backend); err != nil {
				return nil, err
			}
		}
		if opts.MaxNestingLevel != nil {
			cfg.MaxNestingLevel = config.ParseMaxNestingLevel(fmt.Sprint(*opts.MaxNestingLevel), pup.Logger())
		}
		if opts.HostWorkers > 0 {
			cfg.Host.Workers = opts.HostWorkers
		}
	}

	var dev pup.Device
	switch cfg.Backend {
	case config.BackendWebGPU:
		d, err := gpu.New(gpu.WithSyncTimeout(cfg.GPU.SyncTimeout))
		if err != nil {
			return nil, err
		}
		dev = d
	default:
		dev = host.New(host.WithWorkers(cfg.Host.Workers))
	}
	pup.Logger().Info("session opened",
		zap.String("backend", dev.Name()),
		zap.Int("max_nesting_level", cfg.MaxNestingLevel))

	return &session{
		cfg:   cfg,
		dev:   dev,
		eng:   pup.NewEngine(dev, pup.WithMaxDepth(cfg.MaxNestingLevel)),
		types: make(map[int32]*pup.Type),
	}, nil
}

// commit parses a YAML layout description and registers it.
func (s *session) commit(desc string) (*typeInfo, error) {
	spec, err := layout.ParseSpec([]byte(desc))
	if err != nil {
		return nil, err
	}
	n, err := spec.Build()
	if err != nil {
		return nil, err
	}
	t, err := s.eng.Commit(n)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.next++
	h := s.next
	s.types[h] = t
	s.mu.Unlock()

	info := &typeInfo{
		Handle:      h,
		Key:         t.Key().String(),
		Layout:      n.String(),
		NumElements: n.NumElements(),
		Extent:      n.Extent(),
	}
	if r := t.Routine(offset.Pack); r != nil {
		info.Pack = r.Name()
	}
	if r := t.Routine(offset.Unpack); r != nil {
		info.Unpack = r.Name()
	}
	if err := t.Reason(offset.Pack); err != nil {
		info.Reason = err.Error()
	}
	return info, nil
}

func (s *session) lookup(h int32) *pup.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.types[h]
}

// transfer runs pack or unpack between host memory regions. Device backends are
// staged through device buffers; dst keeps the bytes a layout does not touch.
func (s *session) transfer(dir offset.Direction, h int32, src, dst []byte, count int64) error {
	t := s.lookup(h)
	if t == nil {
		return &pup.Error{Op: dir.String(), Status: pup.InvalidArgument, Detail: fmt.Sprintf("unknown handle %d", h)}
	}
	run := s.eng.Pack
	if dir == offset.Unpack {
		run = s.eng.Unpack
	}

	if _, ok := s.dev.(*gpu.Device); !ok {
		return run(host.Bytes(src), host.Bytes(dst), count, t)
	}

	sb, err := gpu.NewBufferInit(src, "cabi_src")
	if err != nil {
		return &pup.Error{Op: dir.String(), Status: pup.AllocationFailure, Cause: err}
	}
	defer sb.Destroy()
	db, err := gpu.NewBufferInit(dst, "cabi_dst")
	if err != nil {
		return &pup.Error{Op: dir.String(), Status: pup.AllocationFailure, Cause: err}
	}
	defer db.Destroy()

	if err := run(sb, db, count, t); err != nil {
		return err
	}
	out, err := db.Read()
	if err != nil {
		return &pup.Error{Op: dir.String(), Status: pup.SynchronizationFailure, Cause: err}
	}
	copy(dst, out)
	return nil
}

func (s *session) free(h int32) bool {
	s.mu.Lock()
	t, ok := s.types[h]
	delete(s.types, h)
	s.mu.Unlock()
	if ok {
		s.eng.Free(t)
	}
	return ok
}

func (s *session) close() {
	s.eng.Close()
	if d, ok := s.dev.(*gpu.Device); ok {
		d.Close()
	}
}
