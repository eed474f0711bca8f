// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jaycherian/gcp-go-pose-compare/internal/core/cor"
)

// suffixCommand appends its suffix to the string it receives.
type suffixCommand struct {
	cor.BaseCommand
	suffix string
	runs   int
}

func newSuffixCommand(name, suffix string) *suffixCommand {
	return &suffixCommand{BaseCommand: *cor.NewBaseCommand(name), suffix: suffix}
}

func (c *suffixCommand) Execute(ctx cor.Context) {
	c.runs++
	in, _ := cor.Value[string](ctx, c.GetInputParam())
	ctx.Add(c.GetOutputParam(), in+c.suffix)
	c.Succeed(ctx)
}

// failCommand records an error and passes its input through.
type failCommand struct {
	cor.BaseCommand
	err error
}

func (c *failCommand) Execute(ctx cor.Context) {
	ctx.Add(c.GetOutputParam(), ctx.Get(c.GetInputParam()))
	c.Fail(ctx, c.err)
}

func newContext(in string) cor.Context {
	ctx := cor.NewBaseContext()
	ctx.SetContext(context.Background())
	ctx.Add(cor.CtxIn, in)
	return ctx
}

func TestChainPipesOutputToInput(t *testing.T) {
	chain := cor.NewBaseChain("pipe").
		AddCommand(newSuffixCommand("a", "-a")).
		AddCommand(newSuffixCommand("b", "-b"))

	ctx := newContext("start")
	chain.Execute(ctx)

	assert.False(t, ctx.HasErrors())
	assert.Nil(t, ctx.Err())
	assert.Equal(t, "start-a-b", ctx.Get(cor.CtxIn))
	assert.Nil(t, ctx.Get(cor.CtxOut))
}

func TestChainStopsOnFirstError(t *testing.T) {
	boom := errors.New("boom")
	last := newSuffixCommand("last", "-x")
	chain := cor.NewBaseChain("stop").
		AddCommand(&failCommand{BaseCommand: *cor.NewBaseCommand("fail"), err: boom}).
		AddCommand(last)

	ctx := newContext("start")
	chain.Execute(ctx)

	assert.True(t, ctx.HasErrors())
	assert.ErrorIs(t, ctx.Err(), boom)
	assert.Equal(t, 0, last.runs)
}

func TestChainContinueOnFailure(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	last := newSuffixCommand("last", "-x")
	chain := cor.NewBaseChain("continue").
		AddCommand(&failCommand{BaseCommand: *cor.NewBaseCommand("one"), err: first}).
		AddCommand(&failCommand{BaseCommand: *cor.NewBaseCommand("two"), err: second}).
		AddCommand(last).
		ContinueOnFailure(true)

	ctx := newContext("start")
	chain.Execute(ctx)

	assert.Equal(t, 1, last.runs)
	assert.Len(t, ctx.GetErrors(), 2)
	assert.ErrorIs(t, ctx.Err(), first)
	assert.ErrorIs(t, ctx.Err(), second)
	assert.True(t, strings.Index(ctx.Err().Error(), "first") < strings.Index(ctx.Err().Error(), "second"))
}

func TestChainRecordsNotExecutableCommand(t *testing.T) {
	cmd := newSuffixCommand("needs-input", "-x")
	cmd.InputParamName = "absent"
	chain := cor.NewBaseChain("guard").AddCommand(cmd)

	ctx := newContext("start")
	chain.Execute(ctx)

	assert.Equal(t, 0, cmd.runs)
	assert.Contains(t, ctx.GetErrors(), "needs-input")
}

func TestChainHonoursCancellation(t *testing.T) {
	cmd := newSuffixCommand("never", "-x")
	chain := cor.NewBaseChain("cancelled").AddCommand(cmd)

	goCtx, cancel := context.WithCancel(context.Background())
	cancel()
	ctx := newContext("start")
	ctx.SetContext(goCtx)
	chain.Execute(ctx)

	assert.Equal(t, 0, cmd.runs)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Equal(t, goCtx, ctx.GetContext())
}

func TestContextCloseRemovesTempFiles(t *testing.T) {
	dir := t.TempDir()
	kept := filepath.Join(dir, "kept")
	temp := filepath.Join(dir, "temp")
	for _, f := range []string{kept, temp} {
		assert.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	}

	ctx := cor.NewBaseContext()
	ctx.AddTempFile(temp)
	ctx.AddTempFile(filepath.Join(dir, "never-created"))
	ctx.Close()

	_, err := os.Stat(temp)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(kept)
	assert.NoError(t, err)
}

func TestValue(t *testing.T) {
	ctx := cor.NewBaseContext()
	ctx.Add("n", 3)

	n, ok := cor.Value[int](ctx, "n")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = cor.Value[string](ctx, "n")
	assert.False(t, ok)
	_, ok = cor.Value[int](ctx, "missing")
	assert.False(t, ok)
}
