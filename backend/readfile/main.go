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

// readfile decodes stored game and player records and prints them as JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ttbt-io/lanekeeper/backend"
)

var (
	dataDir = flag.String("data-dir", "data", "Directory for game and player data")
)

func main() {
	flag.Parse()
	store, err := backend.OpenStorage(*dataDir, os.Getenv(backend.MasterKeyEnv))
	if err != nil {
		log.Fatalf("Critical Security Error: %v. Refusing to read encrypted data in unencrypted mode.", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	for _, arg := range flag.Args() {
		arg = strings.TrimPrefix(arg, *dataDir)
		arg = strings.TrimPrefix(arg, "/")
		var obj any
		switch {
		case strings.HasSuffix(arg, ".meta.json"):
			obj = new(backend.GameMetadata)
		case strings.Contains(arg, "games"):
			obj = new(backend.Game)
		default:
			obj = new(backend.Player)
		}
		if err := store.ReadDataFile(arg, obj); err != nil {
			log.Printf("%s: %v", arg, err)
			continue
		}
		fmt.Printf("=========== %s ===========\n", arg)
		if err := enc.Encode(obj); err != nil {
			log.Printf("JSON: %s: %v", arg, err)
		}
	}
}
