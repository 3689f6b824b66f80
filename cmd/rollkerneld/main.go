// Command rollkerneld is a thin native-mode driver for the rollup core: it
// opens a pebble-backed L0 store, bootstraps genesis state on first run, and
// applies one DA slot's blobs through the STF pipeline, printing the
// resulting state transition as JSON.
//
// Usage:
//
//	rollkerneld [flags]
//
// Flags:
//
//	--config     Path to a YAML config file (default: none, built-in defaults)
//	--genesis    Path to a JSON genesis file, applied only if the store is empty
//	--slot       Path to a JSON file describing the slot's blobs to apply
//	--version    Print version and exit
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/rollkernel/rollkernel/config"
	"github.com/rollkernel/rollkernel/hashfn"
	"github.com/rollkernel/rollkernel/module"
	"github.com/rollkernel/rollkernel/rlog"
	"github.com/rollkernel/rollkernel/stf"
	"github.com/rollkernel/rollkernel/storage"
	"github.com/rollkernel/rollkernel/workingset"
	"github.com/rollkernel/rollkernel/zkvm"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

// headVersionKey is the accessory-store key tracking the last committed JMT
// version, so successive invocations resume from where the last one left off.
var headVersionKey = []byte("rollkerneld/head_version")

func main() {
	os.Exit(run(os.Args[1:]))
}

// cliFlags holds the flags this binary accepts, separate from config.RollupConfig
// since --genesis/--slot/--config are driver concerns, not node configuration.
type cliFlags struct {
	ConfigPath  string
	GenesisPath string
	SlotPath    string
}

func run(args []string) int {
	flags, exit, code := parseFlags(args)
	if exit {
		return code
	}

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rollkerneld: invalid configuration: %v\n", err)
		return 1
	}

	level := rlog.LevelFromString(cfg.LogLevel)
	rlog.SetDefault(rlog.New(slog.Level(level)))
	log := rlog.Default().Module("rollkerneld")

	log.Info("starting", "version", version, "commit", commit)
	log.Info("configuration",
		"datadir", cfg.DataDir,
		"storage_dir", cfg.Storage.Dir,
		"hash_algorithm", cfg.JMT.HashAlgorithm,
		"kernel_policy", cfg.Kernel.Policy,
		"sequencer_bond", cfg.Sequencer.BondAmount,
	)

	if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
		log.Error("failed to create storage dir", "error", err)
		return 1
	}

	store, err := storage.Open(cfg.Storage.Dir, storage.Options{
		CacheSizeMB:  cfg.Storage.CacheSizeMB,
		MaxOpenFiles: cfg.Storage.MaxOpenFiles,
		BytesPerSync: cfg.Storage.BytesPerSync,
		DisableWAL:   cfg.Storage.DisableWAL,
	})
	if err != nil {
		log.Error("failed to open store", "error", err)
		return 1
	}
	defer store.Close()

	hasher, err := hashfn.ByName(cfg.JMT.HashAlgorithm)
	if err != nil {
		log.Error("unknown hash algorithm", "error", err)
		return 1
	}

	bank := module.NewBank("bank", hasher)
	seqReg := module.NewSequencerRegistry("sequencerregistry", bank, hasher)
	registry := module.NewRegistry()
	if err := registry.Register(bank); err != nil {
		log.Error("failed to register bank module", "error", err)
		return 1
	}
	if err := registry.Register(seqReg); err != nil {
		log.Error("failed to register sequencer registry module", "error", err)
		return 1
	}
	pipeline := stf.NewPipeline(registry, seqReg, hasher, nil)

	headVersion, found, err := store.GetAccessory(headVersionKey)
	if err != nil {
		log.Error("failed to read head version", "error", err)
		return 1
	}
	version := uint64(0)
	if found {
		version = decodeVersion(headVersion)
	}

	if !found {
		if flags.GenesisPath == "" {
			log.Error("store is empty and no --genesis file was given")
			return 1
		}
		newVersion, err := applyGenesis(store, hasher, bank, seqReg, flags.GenesisPath)
		if err != nil {
			log.Error("genesis failed", "error", err)
			return 1
		}
		version = newVersion
		log.Info("genesis applied", "version", version)
		if flags.SlotPath == "" {
			return 0
		}
	}

	if flags.SlotPath == "" {
		log.Info("no --slot file given, nothing to apply", "head_version", version)
		return 0
	}

	blobs, err := loadSlotFile(flags.SlotPath)
	if err != nil {
		log.Error("failed to load slot file", "error", err)
		return 1
	}

	base := zkvm.NewStorageBase(store, hasher, version)
	committer := zkvm.NewNativeCommitter(store, hasher, version)
	witness := workingset.NewWitness()
	ws := workingset.New(base, witness, nil)

	result, err := pipeline.ApplySlot(ws, blobs, committer)
	if err != nil {
		log.Error("slot application failed", "error", err)
		return 1
	}

	if err := persistHeadVersion(store, committer.Version()); err != nil {
		log.Error("failed to persist head version", "error", err)
		return 1
	}

	printSlotResult(result)
	log.Info("slot applied", "new_version", committer.Version(), "new_root", result.StateRoot.Hex())
	return 0
}

// parseFlags parses CLI arguments into cliFlags, returning whether the
// caller should exit immediately (e.g. --version) and with what code.
func parseFlags(args []string) (cliFlags, bool, int) {
	var flags cliFlags
	fs := newCustomFlagSet("rollkerneld")
	fs.StringVar(&flags.ConfigPath, "config", "", "path to a YAML config file")
	fs.StringVar(&flags.GenesisPath, "genesis", "", "path to a JSON genesis file (applied only on an empty store)")
	fs.StringVar(&flags.SlotPath, "slot", "", "path to a JSON file describing the slot's blobs")
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return flags, true, 2
	}
	if *showVersion {
		fmt.Printf("rollkerneld %s (commit %s)\n", version, commit)
		return flags, true, 0
	}
	return flags, false, 0
}

// genesisFile is the on-disk JSON shape --genesis reads.
type genesisFile struct {
	Bank              module.BankConfig              `json:"bank"`
	SequencerRegistry module.SequencerRegistryConfig `json:"sequencer_registry"`
}

func applyGenesis(store *storage.Store, hasher hashfn.Hasher, bank *module.Bank, seqReg *module.SequencerRegistry, path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading genesis file: %w", err)
	}
	var gen genesisFile
	if err := json.Unmarshal(data, &gen); err != nil {
		return 0, fmt.Errorf("parsing genesis file: %w", err)
	}

	base := zkvm.NewStorageBase(store, hasher, 0)
	ws := workingset.New(base, workingset.NewWitness(), nil)
	if err := bank.Genesis(ws, mustMarshal(gen.Bank)); err != nil {
		return 0, fmt.Errorf("bank genesis: %w", err)
	}
	if err := seqReg.Genesis(ws, mustMarshal(gen.SequencerRegistry)); err != nil {
		return 0, fmt.Errorf("sequencer registry genesis: %w", err)
	}

	committer := zkvm.NewNativeCommitter(store, hasher, 0)
	out, _ := ws.Freeze()
	if _, err := committer.Commit(out.Writes); err != nil {
		return 0, fmt.Errorf("committing genesis: %w", err)
	}
	if err := persistHeadVersion(store, committer.Version()); err != nil {
		return 0, err
	}
	return committer.Version(), nil
}

// slotFileBlob is the on-disk JSON shape of one blob in a --slot file.
type slotFileBlob struct {
	SequencerAddr string `json:"sequencer_addr"`
	Data          []byte `json:"data"`
}

func loadSlotFile(path string) ([]stf.Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading slot file: %w", err)
	}
	var entries []slotFileBlob
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing slot file: %w", err)
	}
	blobs := make([]stf.Blob, len(entries))
	for i, e := range entries {
		blobs[i] = stf.Blob{SequencerAddr: hexToAddress(e.SequencerAddr), Data: e.Data}
	}
	return blobs, nil
}

func printSlotResult(result stf.SlotResult) {
	type txReceiptView struct {
		TxHash  string `json:"tx_hash"`
		Applied bool   `json:"applied"`
		Reason  string `json:"reason,omitempty"`
	}
	type batchReceiptView struct {
		BatchHash string          `json:"batch_hash"`
		TxCount   int             `json:"tx_count"`
		Txs       []txReceiptView `json:"txs"`
	}
	type view struct {
		StateRoot string             `json:"state_root"`
		Batches   []batchReceiptView `json:"batches"`
	}

	out := view{StateRoot: result.StateRoot.Hex()}
	for _, br := range result.BatchReceipts {
		bv := batchReceiptView{BatchHash: br.BatchHash.Hex(), TxCount: len(br.TxReceipts)}
		for _, tr := range br.TxReceipts {
			bv.Txs = append(bv.Txs, txReceiptView{
				TxHash:  tr.TxHash.Hex(),
				Applied: tr.Effect.Applied,
				Reason:  string(tr.Effect.Reason),
			})
		}
		out.Batches = append(out.Batches, bv)
	}

	enc, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(enc))
}

func persistHeadVersion(store *storage.Store, v uint64) error {
	b := store.NewBatch()
	if err := b.PutAccessory(headVersionKey, encodeVersion(v)); err != nil {
		return err
	}
	return store.ApplyBatch(b)
}

func encodeVersion(v uint64) []byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[7-i] = byte(v >> (8 * i))
	}
	return buf
}

func decodeVersion(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func hexToAddress(s string) (a [20]byte) {
	copy(a[:], fromHexShim(s))
	return
}

// fromHexShim strips an optional 0x prefix and decodes hex, matching the
// lenience of core/types' own hex helpers without importing their
// unexported fromHex.
func fromHexShim(s string) []byte {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b := make([]byte, len(s)/2)
	for i := range b {
		hi := hexNibble(s[i*2])
		lo := hexNibble(s[i*2+1])
		b[i] = hi<<4 | lo
	}
	return b
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
