package config

// -----------------------------------------------------------------------------
// Embedded profiles
//
// Key: device ID (selected with --device on the host, fixed at build time
// on the firmware).
// Val: raw JSON for that device. Omitted keys keep their defaults.
// -----------------------------------------------------------------------------

// The camera board: 8 KiB part strapped to 0x56, 8-byte pages, 10 kHz bus,
// console on UART0 at 38400 Bd.
const cfgCamera = `{
  "family": "camera",
  "address": 86,
  "dump": {"start": 0, "end": 8192},
  "console": {"baud": 38400, "tx": 0, "rx": 1},
  "bus": {"hz": 10000, "sda": 4, "scl": 5}
}`

const cfgPico24C256 = `{
  "family": "24C256",
  "address": 80,
  "console": {"baud": 115200, "tx": 0, "rx": 1},
  "bus": {"hz": 100000, "sda": 4, "scl": 5}
}`

const cfg24C02 = `{
  "family": "24C02",
  "address": 80,
  "bus": {"hz": 100000}
}`

var embeddedConfigs = map[string][]byte{
	"camera":        []byte(cfgCamera),
	"pico-24c256":   []byte(cfgPico24C256),
	"generic-24c02": []byte(cfg24C02),
}
