// main is the entry point for the offcache CLI.
package main

import (
	"github.com/huangsam/offcache/cmd"
	"github.com/huangsam/offcache/internal/contract"
	"github.com/huangsam/offcache/internal/iocache"
)

func main() {
	cmd.SetCacheManager(iocache.Manager)
	err := cmd.Execute()
	iocache.CloseStorage()
	if err != nil {
		contract.LogFatal("Error running offcache", err)
	}
}
