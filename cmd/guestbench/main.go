// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command guestbench is a small runnable demonstration of the guestexec
// invariants: bounded pool growth, pinning a task sequence to one holder,
// and graceful vs immediate shutdown. It runs against an in-memory fake
// context rather than a real guest-language interpreter.
package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-arcade/guestexec/pkg/conf"
	"github.com/go-arcade/guestexec/pkg/guestexec"
	"github.com/go-arcade/guestexec/pkg/log"
	"github.com/go-arcade/guestexec/pkg/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	poolSize    int
	taskCount   int
	confDir     string
	metricsOn   bool
	metricsPort int
)

// benchConfig is the shape of config.toml when --config-dir is given; it
// overrides whatever the pool-size/tasks/metrics flags were set to.
type benchConfig struct {
	PoolSize  int  `mapstructure:"pool_size"`
	TaskCount int  `mapstructure:"task_count"`
	Metrics   bool `mapstructure:"metrics"`
}

var rootCmd = &cobra.Command{
	Use:   "guestbench",
	Short: "guestbench exercises a guestexec.Executor against a fake context",
	Long:  "guestbench exercises a guestexec.Executor against a fake context",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBench()
	},
}

func init() {
	rootCmd.Flags().IntVar(&poolSize, "pool-size", 4, "maximum number of guest contexts")
	rootCmd.Flags().IntVar(&taskCount, "tasks", 32, "number of unconfined tasks to submit")
	rootCmd.Flags().StringVar(&confDir, "config-dir", "", "directory holding config.toml (overrides pool-size/tasks/metrics)")
	rootCmd.Flags().BoolVar(&metricsOn, "metrics", false, "serve executor metrics over HTTP")
	rootCmd.Flags().IntVar(&metricsPort, "metrics-port", 8082, "port for the metrics HTTP listener")
	_ = viper.BindPFlag("pool-size", rootCmd.Flags().Lookup("pool-size"))
	_ = viper.BindPFlag("tasks", rootCmd.Flags().Lookup("tasks"))
	viper.AutomaticEnv()
}

func main() {
	log.MustInit(log.SetDefaults())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("guestbench: %v", err)
	}
}

// loadConfig applies config.toml over the flag defaults when --config-dir
// is set, the way every teacher cmd/ entrypoint layers a config file on
// top of its flags.
func loadConfig() error {
	if confDir == "" {
		return nil
	}
	cfg := &benchConfig{PoolSize: poolSize, TaskCount: taskCount, Metrics: metricsOn}
	if _, err := conf.LoadConfigFile(confDir, cfg); err != nil {
		return fmt.Errorf("guestbench: %w", err)
	}
	poolSize = cfg.PoolSize
	taskCount = cfg.TaskCount
	metricsOn = cfg.Metrics
	return nil
}

// fakeContext is an in-memory stand-in for a guest-language interpreter: it
// just tracks whether it is currently entered, and fails a second Enter
// before Leave, to make the non-reentrancy invariant observable.
type fakeContext struct {
	id      int64
	entered int32
}

func (c *fakeContext) Enter() error {
	if !atomic.CompareAndSwapInt32(&c.entered, 0, 1) {
		return fmt.Errorf("context %d entered twice concurrently", c.id)
	}
	return nil
}

func (c *fakeContext) Leave() error {
	atomic.StoreInt32(&c.entered, 0)
	return nil
}

func (c *fakeContext) Close(bool) error {
	return nil
}

func runBench() error {
	if err := loadConfig(); err != nil {
		return err
	}

	var nextID int64

	metricsSrv := metrics.NewServer(metrics.MetricsConfig{Enable: metricsOn, Port: metricsPort})
	if err := metricsSrv.Start(); err != nil {
		return fmt.Errorf("guestbench: starting metrics server: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = metricsSrv.Stop(ctx)
	}()
	execMetrics := guestexec.NewMetrics(metricsSrv.GetSink())

	exec, err := guestexec.New(guestexec.Config{
		MaxContextPoolSize: poolSize,
		Metrics:            execMetrics,
		ContextFactory: func() (guestexec.ContextHandle, error) {
			id := atomic.AddInt64(&nextID, 1)
			log.Infof("guestbench: creating context %d", id)
			return &fakeContext{id: id}, nil
		},
	})
	if err != nil {
		return err
	}

	futures := make([]*guestexec.Future, 0, taskCount)
	for i := 0; i < taskCount; i++ {
		n := i
		f, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
			time.Sleep(5 * time.Millisecond)
			return n, nil
		})
		if err != nil {
			return err
		}
		futures = append(futures, f)
	}

	var pin guestexec.PinnedContext
	pinTask, err := exec.Submit(context.Background(), func(ctx context.Context) (any, error) {
		p, perr := guestexec.CurrentPin()
		pin = p
		return nil, perr
	})
	if err != nil {
		return err
	}
	if _, err := pinTask.Get(); err != nil {
		return err
	}

	for i := 0; i < 3; i++ {
		seq := i
		f, err := exec.SubmitPinned(context.Background(), pin, func(ctx context.Context) (any, error) {
			log.Infof("guestbench: pinned step %d running on %v", seq, guestexec.OnDispatchThread())
			return seq, nil
		})
		if err != nil {
			return err
		}
		if _, err := f.Get(); err != nil {
			return err
		}
	}

	for _, f := range futures {
		if _, err := f.Get(); err != nil {
			return err
		}
	}

	log.Infof("guestbench: ran %d unconfined tasks and 3 pinned steps with pool size %d", taskCount, poolSize)

	exec.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return exec.AwaitTermination(ctx)
}
