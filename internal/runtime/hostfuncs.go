package runtime

import (
	"context"
	"log/slog"

	"github.com/risor-io/risor/object"
)

// makeDefineTableFn creates the "define_table" host function.
//
// define_table(path)
func makeDefineTableFn(env *Environment) *object.Builtin {
	return object.NewBuiltin("define_table", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("define_table", 1, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("define_table: path: %v", err)
		}
		if _, err := env.DefineTable(path); err != nil {
			return object.Errorf("define_table: %v", err)
		}
		return object.Nil
	})
}

// makeDefineValueFn creates the "define_value" host function.
//
// define_value(path, type)
func makeDefineValueFn(env *Environment) *object.Builtin {
	return object.NewBuiltin("define_value", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("define_value", 2, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("define_value: path: %v", err)
		}
		typ, err := toString(args[1])
		if err != nil {
			return object.Errorf("define_value: type: %v", err)
		}
		if err := env.DefineValue(path, typ); err != nil {
			return object.Errorf("define_value: %v", err)
		}
		return object.Nil
	})
}

// makeDefineFunctionFn creates the "define_function" host function.
//
// define_function(path, args, returns)
//
// args and returns are lists of strings; see Environment.DefineFunction.
// returns may be omitted.
func makeDefineFunctionFn(env *Environment) *object.Builtin {
	return object.NewBuiltin("define_function", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 2 || len(args) > 3 {
			return object.Errorf("define_function: expected 2 or 3 arguments, got %d", len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("define_function: path: %v", err)
		}
		params, err := toStringList(args[1])
		if err != nil {
			return object.Errorf("define_function: args: %v", err)
		}
		var returns []string
		if len(args) == 3 {
			if returns, err = toStringList(args[2]); err != nil {
				return object.Errorf("define_function: returns: %v", err)
			}
		}
		if err := env.DefineFunction(path, params, returns); err != nil {
			return object.Errorf("define_function: %v", err)
		}
		return object.Nil
	})
}

// makeDescribeFn creates the "describe" host function.
//
// describe(path, text)
func makeDescribeFn(env *Environment) *object.Builtin {
	return object.NewBuiltin("describe", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("describe", 2, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("describe: path: %v", err)
		}
		text, err := toString(args[1])
		if err != nil {
			return object.Errorf("describe: text: %v", err)
		}
		if err := env.Describe(path, text); err != nil {
			return object.Errorf("describe: %v", err)
		}
		return object.Nil
	})
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	log    *slog.Logger
	script string
}

func (l *logObject) Info(msg string) {
	l.log.Info(msg, "script", l.script)
}

func (l *logObject) Warn(msg string) {
	l.log.Warn(msg, "script", l.script)
}

func (l *logObject) Error(msg string) {
	l.log.Error(msg, "script", l.script)
}
