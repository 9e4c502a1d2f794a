// Package transfer implements the backup transfer engine.
//
// A run mirrors one or more local source paths into a fresh, timestamped
// root on a single destination. The engine is destination agnostic: each
// backend (local filesystem, SMB share, Google Drive, Dropbox, object stores,
// SFTP) is an Adapter registered in a Registry, and the Manager drives the
// walk through the per-run Handle the adapter returns.
//
// Core Components:
//
// - Manager: runs one backup at a time, reports progress and honors Stop
// - Registry: maps a DestinationKind to its Adapter
// - Adapter / Handle: backend connection and per-run session
// - TransferError: typed errors carrying a remediation hint
//
// Guarantees of a run:
//
// 1. Every attempted file is counted, successful or not
// 2. A failing file is logged once and never aborts the run
// 3. A stop request is honored between files; the file in flight completes
// 4. Progress is monotonic and a completed run always ends at 100
//
// Example usage:
//
//	registry := transfer.NewRegistry(destination.NewLocalAdapter())
//	manager := transfer.NewManager(registry, logger)
//
//	result, err := manager.Run(ctx, transfer.Request{
//		Sources:     []string{"/home/me/Documents"},
//		Destination: transfer.DestinationLocal,
//		Config:      transfer.DestinationConfig{"path": "/mnt/backups"},
//	}, transfer.Sinks{
//		OnProgress: func(p int, status string) { bar.Update(p, status) },
//		OnLog:      func(msg string) { fmt.Println(msg) },
//	})
//	if err != nil {
//		return fmt.Errorf("backup failed: %w", err)
//	}
package transfer
