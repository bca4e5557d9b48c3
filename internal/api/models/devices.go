package models

import "github.com/rcn8397/v4l2loopback-tricks/internal/devices"

type DeviceListData struct {
	Devices []devices.Device `json:"devices" doc:"Video device nodes in natural order"`
	Count   int              `json:"count" example:"3" doc:"Number of devices"`
}

type DeviceListResponse struct {
	Body DeviceListData
}
