package expr

import (
	"log/slog"

	"github.com/sandrolain/vexpr/pkg/interp"
	"github.com/sandrolain/vexpr/pkg/jit"
	"github.com/sandrolain/vexpr/pkg/program"
)

// compileBackend hands the program to the resolved backend and returns the
// runnable form plus the backend name. Programs with string traffic always
// take the interpreter; a native compilation failure also falls over to the
// interpreter, which accepts every program.
func compileBackend(p *program.Program, useJIT bool, logger *slog.Logger) (Compiled, string) {
	if useJIT && !p.HasStrings() {
		if be, err := jit.New(); err == nil {
			c, err := be.Compile(p)
			if err == nil {
				return c, be.Name()
			}
			logger.Warn("native compilation failed, using interpreter",
				slog.String("error", err.Error()))
		}
	}

	be := interp.New()
	c, err := be.Compile(p)
	if err != nil {
		// The interpreter accepts every well-formed program.
		panic("vexpr: interpreter rejected program: " + err.Error())
	}
	return c, be.Name()
}
