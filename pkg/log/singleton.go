// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"flag"
	"fmt"
	"strings"
	"sync"
)

// optDebug is the flag name used to toggle per-source debug logging at
// runtime, e.g. -logging-debug=on:*,off:foo,bar.
const optDebug = "logging-debug"

// logging is the single piece of process-wide state every logger
// instance and package-level function reads and writes through.
type logging struct {
	sync.RWMutex
	backend      map[string]BackendFn
	active       Backend
	level        Level
	forced       bool
	configs      map[logger]config
	sources      map[logger]string
	maxSourceLen int
}

var log = newLogging()

func newLogging() *logging {
	s := &logging{
		backend: make(map[string]BackendFn),
		configs: make(map[logger]config),
		sources: make(map[logger]string),
		level:   LevelInfo,
	}
	s.backend[FmtBackendName] = createFmtBackend
	s.active = createFmtBackend()
	return s
}

// get returns the logger for source, creating one the first time
// source is seen.
func (s *logging) get(source string) logger {
	s.Lock()
	defer s.Unlock()

	for l, src := range s.sources {
		if src == source {
			return l
		}
	}

	id := logger(len(s.sources))
	if int(id) >= maxLoggers {
		panic(fmt.Sprintf("log: too many loggers, cannot create one for %q", source))
	}
	s.sources[id] = source
	s.configs[id] = mkConfig(id, true, false)
	if len(source) > s.maxSourceLen {
		s.maxSourceLen = len(source)
		if s.active != nil {
			s.active.SetSourceAlignment(s.maxSourceLen)
		}
	}
	return id
}

func (s *logging) forceDebug(state bool) {
	s.Lock()
	defer s.Unlock()
	s.forced = state
}

func (s *logging) debugForced() bool {
	s.RLock()
	defer s.RUnlock()
	return s.forced
}

// Get returns the Logger for the given source, creating one on first use.
func Get(source string) Logger {
	return log.get(source)
}

// NewLogger returns the Logger for the given source, creating one on first use.
func NewLogger(source string) Logger {
	return log.get(source)
}

// SetLevel sets the process-wide minimum severity level for non-debug messages.
func SetLevel(level Level) {
	log.Lock()
	defer log.Unlock()
	log.level = level
}

// SetBackend activates the registered backend with the given name.
func SetBackend(name string) error {
	log.Lock()
	defer log.Unlock()

	fn, ok := log.backend[name]
	if !ok {
		return fmt.Errorf("log: unknown backend %q", name)
	}

	old := log.active
	b := fn()
	b.SetSourceAlignment(log.maxSourceLen)
	log.active = b
	if old != nil {
		old.Stop()
	}
	return nil
}

// debugFlag implements flag.Value for -logging-debug.
type debugFlag struct{}

func (*debugFlag) String() string {
	return ""
}

func (*debugFlag) Set(value string) error {
	mode := true
	for _, tok := range strings.Split(value, ",") {
		tok = strings.TrimSpace(tok)
		switch {
		case tok == "":
			continue
		case strings.HasPrefix(tok, "on:"):
			mode = true
			tok = strings.TrimPrefix(tok, "on:")
		case strings.HasPrefix(tok, "off:"):
			mode = false
			tok = strings.TrimPrefix(tok, "off:")
		}
		if tok == "" {
			continue
		}
		setDebugForPattern(tok, mode)
	}
	return nil
}

// setDebugForPattern enables/disables debug tracing for every known
// source matching pattern ("*" matches every source).
func setDebugForPattern(pattern string, enabled bool) {
	log.Lock()
	defer log.Unlock()
	for l, source := range log.sources {
		if pattern == "*" || pattern == source {
			cfg := log.configs[l]
			cfg.setTracing(enabled)
			log.configs[l] = cfg
		}
	}
}

func init() {
	flag.Var(&debugFlag{}, optDebug, "configure per-source debug logging, e.g. 'on:*,off:foo,bar'")
}
