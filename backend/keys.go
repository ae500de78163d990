// Copyright (c) 2026 TTBT Enterprises LLC
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

package backend

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
)

// MasterKeyEnv is the environment variable holding the storage passphrase.
const MasterKeyEnv = "LK_MASTER_KEY"

// ErrKeyWithoutPassphrase is returned when the data directory is encrypted
// but no passphrase was given.
var ErrKeyWithoutPassphrase = errors.New("master.key exists but no passphrase was provided")

// OpenStorage opens the data directory. With a passphrase, data is encrypted
// with the master key in dataDir/master.key, which is created on first use.
// Without one, data is stored unencrypted, unless a master key already exists.
func OpenStorage(dataDir, passphrase string) (*storage.Storage, error) {
	keyFile := filepath.Join(dataDir, "master.key")
	if passphrase == "" {
		if _, err := os.Stat(keyFile); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrKeyWithoutPassphrase, keyFile)
		}
		log.Printf("Warning: No %s provided. Data will be stored UNENCRYPTED.", MasterKeyEnv)
		return storage.New(dataDir, nil), nil
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	masterKey, err := crypto.ReadMasterKey([]byte(passphrase), keyFile)
	switch {
	case err == nil:
		log.Println("Loaded master encryption key.")
	case os.IsNotExist(err):
		log.Println("Initializing new master encryption key...")
		if masterKey, err = crypto.CreateMasterKey(); err != nil {
			return nil, fmt.Errorf("create master key: %w", err)
		}
		if err := masterKey.Save([]byte(passphrase), keyFile); err != nil {
			return nil, fmt.Errorf("save master key: %w", err)
		}
	default:
		return nil, fmt.Errorf("read master key: %w", err)
	}
	return storage.New(dataDir, masterKey), nil
}
