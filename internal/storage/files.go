/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	BackupsDirName = "backups"
	// backupsPerSlot bounds how many old versions of a slot file are kept.
	backupsPerSlot = 5
)

// SlotFileName is the JSON file name of a slot, e.g. save03.json.
func SlotFileName(slot int) string { return fmt.Sprintf("save%02d.json", slot) }

// LegacyFileName is the XML file name older releases used, e.g. save03.sav.
func LegacyFileName(slot int) string { return fmt.Sprintf("save%02d.sav", slot) }

// writeAtomic replaces path with data: the previous file is copied into
// backups/, data goes to a temp file in the same directory which is synced
// and renamed over the target.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	bdir := filepath.Join(dir, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	if _, statErr := os.Stat(path); statErr == nil {
		stamp := time.Now().Format("20060102-150405.000")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(path), stamp))
		if cerr := copyFile(path, bpath); cerr != nil {
			return fmt.Errorf("backup current file: %w", cerr)
		}
		pruneBackups(bdir, filepath.Base(path), backupsPerSlot)
	}
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(path), os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("write temp file: %w", werr)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	if rerr := os.Rename(temp, path); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), rerr)
	}
	return nil
}

func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sf.Close()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(df, sf)
	return err
}

// backupsFor lists backups of base, oldest first (the timestamp in the name
// sorts lexicographically).
func backupsFor(bdir, base string) []string {
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, base+".") && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out)
	return out
}

func pruneBackups(bdir, base string, keep int) {
	all := backupsFor(bdir, base)
	for len(all) > keep {
		_ = os.Remove(all[0])
		all = all[1:]
	}
}

// readLatestBackup returns the newest backup of the file at path.
func readLatestBackup(path string) ([]byte, string, error) {
	all := backupsFor(filepath.Join(filepath.Dir(path), BackupsDirName), filepath.Base(path))
	if len(all) == 0 {
		return nil, "", errors.New("no backups found")
	}
	latest := all[len(all)-1]
	b, err := os.ReadFile(latest)
	if err != nil {
		return nil, "", fmt.Errorf("read latest backup: %w", err)
	}
	return b, latest, nil
}
