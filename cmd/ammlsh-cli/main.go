package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cli := NewCLIWithDefaults()
	defer cli.Close()

	var err error
	args := os.Args[2:]

	switch os.Args[1] {
	case "hash":
		err = cli.Hash(args)
	case "drift":
		err = cli.Drift(args)
	case "boundaries":
		err = cli.Boundaries(args)
	case "search":
		err = cli.Search(args)
	case "batch":
		err = cli.Batch(args)
	case "commit":
		err = cli.Commit(args)
	case "status":
		err = cli.Status()
	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`ammlsh-cli - locality-sensitive hashing of AMM swaps

Usage:
  ammlsh-cli <command> [flags]

Commands:
  hash        Hash one swap scenario
  drift       Compare hashes while the pool drifts step by step
  boundaries  Compare hashes at slippage tolerance boundaries
  search      Find the smallest pool perturbations that change the hash
  batch       Run both searches for every swap in a dataset
  commit      Compute or verify the commitment to a hash
  status      Show daemon status
  help        Show this help message

Common flags:
  --config <path>   Configuration file (default: ~/.config/ammlsh/config.toml)
  -x, -y <n>        Pool balances
  --amount <n>      Amount swapped into the pool
  --out <path>      Write the CSV report to a file instead of stdout

Examples:
  ammlsh-cli hash -x 1000000 -y 2000000 --amount 500000
  ammlsh-cli drift -x 1000000 -y 2000000 --amount 500000 --steps 64 --step 100
  ammlsh-cli boundaries -x 1000000 -y 2000000 --amount 500000 --bps 10,50,100
  ammlsh-cli batch --out hamming-res.csv raydium.csv
  ammlsh-cli commit --verify <commitment> 0110...`)
}
