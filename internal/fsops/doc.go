// Package fsops performs the physical file operations behind batch commits.
//
// All mutations go through the Provider interface so the batch engine can be
// tested against an in-memory filesystem. The OS implementation retries NFS
// stale file handle errors with exponential backoff and copies across volumes
// in bounded chunks through a temporary file, so a cancelled or failed copy
// never leaves a partial destination behind.
package fsops
