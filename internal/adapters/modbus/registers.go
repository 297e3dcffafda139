package modbus

// Input registers (function code 4) and write targets on the NTN dongle.
const (
	regPassword = 0x0000

	regMCUModelName = 0xEA66
	regMCUFWVersion = 0xEA6B
	regModuleStatus = 0xEA71
	regMCUSerialSKU = 0xEA73
	regUploadAvail  = 0xEA7D

	regIMSI        = 0xEB00
	regSINR        = 0xEB13
	regRSRP        = 0xEB15
	regNetworkTime = 0xEB17
	regGPSLat      = 0xEB1B
	regGPSLon      = 0xEB20
	regServiceMode = 0xEB29

	regSendStart   = 0xC550
	regSendRespLen = 0xF060
	regSendResp    = 0xF061

	regDownlinkLen  = 0xEC60
	regDownlinkData = 0xEC61
)

// Register counts of the fixed-width text fields.
const (
	lenMCUModelName = 5
	lenMCUFWVersion = 2
	lenMCUSerialSKU = 10
	lenIMSI         = 8
	lenSINR         = 2
	lenRSRP         = 2
	lenNetworkTime  = 4
	lenGPSLat       = 5
	lenGPSLon       = 6
)

const (
	// writeChunkRegisters is the dongle's uplink write window.
	writeChunkRegisters = 64

	// maxReadRegisters is the Modbus limit for one read request.
	maxReadRegisters = 125

	uplinkCompleted = "Uplink Completed"
)
