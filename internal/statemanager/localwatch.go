/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package statemanager

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wso2/api-platform/gateway/ai-gateway/internal/localconfig"
	"github.com/wso2/api-platform/gateway/ai-gateway/internal/metrics"
	"github.com/wso2/api-platform/gateway/ai-gateway/internal/store"
)

// debounceInterval coalesces bursts of file events into one reload
const debounceInterval = 250 * time.Millisecond

// watchLocal reloads the local config file when it changes. The parent
// directory is watched (non-recursive) so atomic replace-by-rename is seen
// as a Create. A reload failure keeps the previous state; the watcher keeps
// running.
func (m *StateManager) watchLocal(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.ErrorContext(ctx, "Failed to create config file watcher", "error", err)
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(m.localPath)
	if err := watcher.Add(dir); err != nil {
		slog.ErrorContext(ctx, "Failed to watch config directory",
			"dir", dir,
			"error", err)
		return
	}

	slog.InfoContext(ctx, "Watching local config", "path", m.localPath)

	target := filepath.Clean(m.localPath)
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounceInterval)
			pending = timer.C

		case <-pending:
			timer = nil
			pending = nil
			if err := m.reload(); err != nil {
				slog.ErrorContext(ctx, "Config reload failed, keeping previous state",
					"path", m.localPath,
					"error", err)
			} else {
				slog.InfoContext(ctx, "Config reloaded", "path", m.localPath)
			}

		case werr := <-watcher.Errors:
			slog.WarnContext(ctx, "Config watcher error", "error", werr)
		}
	}
}

// reload parses the file and syncs both stores. The previous state advances
// only on success.
func (m *StateManager) reload() error {
	cfg, err := localconfig.ParseFile(m.localPath)
	if err != nil {
		metrics.ConfigReloadsTotal.WithLabelValues("failure").Inc()
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := store.PreviousState{
		Binds:     m.stores.Binds.SyncLocal(cfg.Binds, cfg.Policies, cfg.Backends, m.prev.Binds),
		Discovery: m.stores.Discovery.SyncLocal(cfg.Services, cfg.Workloads, m.prev.Discovery),
	}
	m.prev = next

	metrics.ConfigReloadsTotal.WithLabelValues("success").Inc()
	return nil
}
