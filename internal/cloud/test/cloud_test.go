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

// Package cloud_test contains unit tests for configuration loading, the
// per-identity locks and the quota aware pose engine wrapper.
package cloud_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jaycherian/gcp-go-pose-compare/internal/cloud"
	"github.com/jaycherian/gcp-go-pose-compare/internal/core/model"
	test "github.com/jaycherian/gcp-go-pose-compare/internal/testutil"
)

// TestLoadConfig checks that the runtime file is decoded on top of the base
// file and that unset keys keep their defaults.
func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	base := "[application]\nname = \"base\"\nkeyframe_stride = 3\n[comparison]\ndefault_threshold = 0.4\n"
	env := "[application]\nname = \"override\"\n[lock]\ndriver = \"redis\"\n"
	assert.Nil(t, os.WriteFile(filepath.Join(dir, ".env.toml"), []byte(base), 0o644))
	assert.Nil(t, os.WriteFile(filepath.Join(dir, ".env.unit.toml"), []byte(env), 0o644))
	t.Setenv(cloud.EnvConfigFilePrefix, dir)
	t.Setenv(cloud.EnvConfigRuntime, "unit")

	config := cloud.NewConfig()
	assert.Nil(t, cloud.LoadConfig(config))
	assert.Equal(t, "override", config.Application.Name)
	assert.Equal(t, 3, config.Application.KeyframeStride)
	assert.Equal(t, 0.4, config.Comparison.DefaultThreshold)
	assert.Equal(t, 0.7, config.Comparison.VisibilityGate)
	assert.Equal(t, "redis", config.Lock.Driver)
	assert.Equal(t, int64(500), config.Application.MaxUploadMB)
}

func TestLoadConfigMissingFiles(t *testing.T) {
	t.Setenv(cloud.EnvConfigFilePrefix, t.TempDir())
	t.Setenv(cloud.EnvConfigRuntime, "none")
	config := cloud.NewConfig()
	assert.Nil(t, cloud.LoadConfig(config))
	assert.Equal(t, "memory", config.Store.Driver)
	assert.Equal(t, 2*time.Second, config.PoseEngine.Timeout())
}

// TestKeyedMutex checks mutual exclusion per key, independence across keys
// and that a waiter gives up with its context.
func TestKeyedMutex(t *testing.T) {
	km := cloud.NewKeyedMutex()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := km.Lock(ctx, "a")
			assert.Nil(t, err)
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())

	unlockA, err := km.Lock(ctx, "a")
	assert.Nil(t, err)
	unlockB, err := km.Lock(ctx, "b")
	assert.Nil(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = km.Lock(short, "a")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	unlockA()
	unlockA()
	unlockB()
	again, err := km.Lock(ctx, "a")
	assert.Nil(t, err)
	again()
}

// TestQuotaAwareSoftDeadline checks that a call overrunning the soft
// deadline becomes "no detection" instead of an error.
func TestQuotaAwareSoftDeadline(t *testing.T) {
	slow := &test.FakeEstimator{Delay: time.Second}
	q := cloud.NewQuotaAwarePoseEstimator(slow, 0, 1, 20*time.Millisecond)

	points, ok, err := q.Detect(context.Background(), nil)
	assert.Nil(t, err)
	assert.False(t, ok)
	assert.Nil(t, points)
	assert.Equal(t, 1, slow.Calls())
}

func TestQuotaAwarePassThrough(t *testing.T) {
	q := cloud.NewQuotaAwarePoseEstimator(&test.FakeEstimator{}, 1000, 5, time.Second)
	points, ok, err := q.Detect(context.Background(), nil)
	assert.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.JointCount, len(points))

	failing := cloud.NewQuotaAwarePoseEstimator(&test.FakeEstimator{Err: model.ErrEngineUnavailable}, 0, 1, time.Second)
	_, _, err = failing.Detect(context.Background(), nil)
	assert.True(t, errors.Is(err, model.ErrEngineUnavailable))
}

// TestQuotaAwareCallerCancelled checks that the caller's own cancellation is
// still an error.
func TestQuotaAwareCallerCancelled(t *testing.T) {
	q := cloud.NewQuotaAwarePoseEstimator(&test.FakeEstimator{Delay: time.Second}, 0, 1, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := q.Detect(ctx, nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestGCSObject(t *testing.T) {
	obj := &cloud.GCSObject{Bucket: "b", Name: "dances/Salsa.MP4"}
	assert.Equal(t, "Salsa.MP4", obj.BaseName())
	assert.Equal(t, "mp4", obj.Extension())
}
