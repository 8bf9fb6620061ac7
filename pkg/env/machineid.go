// Package env resolves the identity of the node from the host.
package env

import (
	"github.com/denisbrodbeck/machineid"

	"github.com/robotalks/xgrid.go/pkg/xgrid"
)

// AppID salts the machine id so it's not exposed on the wire.
const AppID = "xgrid"

// MachineID retrieves the unique ID identifying the machine.
func MachineID() string {
	id, err := machineid.ProtectedID(AppID)
	if err != nil {
		panic(err)
	}
	return id
}

// NodeID derives the 16-bit node id from a machine id.
func NodeID(machineID string) uint16 {
	return xgrid.CRC16([]byte(machineID))
}

// LocalNodeID is NodeID of this machine.
func LocalNodeID() uint16 {
	return NodeID(MachineID())
}
