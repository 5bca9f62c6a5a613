package config

// -----------------------------------------------------------------------------
// Embedded board configuration
//
// Key: board name as passed to Load.
// Val: raw YAML for that board.
// -----------------------------------------------------------------------------

const cfgGiotto = `
name: giotto
card:
  name: Giotto Dac
  dai_format: i2s
  max_rate: 352800
codec:
  compatible: ti,pcm1795
  bus:
    type: spi
    id: SPI0.0
    speed_hz: 1000000
  startup_delay: 50ms
potentiometer:
  compatible: maxim,ds1807
  bus:
    type: i2c
    id: "1"
    address: 0x28
controls:
  DAC Playback Volume: [240, 240]
  Analog Playback Gain: [0, 0]
monitor:
  interval: 2s
log:
  level: info
`

const cfgPCM1792AI2C = `
name: pcm1792a-i2c
card:
  name: PCM1792A
  dai_format: i2s
codec:
  compatible: ti,pcm1792a
  bus:
    type: i2c
    id: "1"
    address: 0x4c
log:
  level: warn
`

var embeddedConfigs = map[string][]byte{
	"giotto":       []byte(cfgGiotto),
	"pcm1792a-i2c": []byte(cfgPCM1792AI2C),
}
