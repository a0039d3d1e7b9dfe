package appcontext

import (
	"github.com/mirrorkeep/mirrorkeep/logging"
)

type AppContext struct {
	Logger *logging.Logger

	numCPU      int
	username    string
	hostname    string
	machineID   string
	processID   int
	commandLine string
	cwd         string
}

func NewAppContext() *AppContext {
	return &AppContext{}
}

func (c *AppContext) SetNumCPU(numCPU int) {
	c.numCPU = numCPU
}

func (c *AppContext) GetNumCPU() int {
	return c.numCPU
}

func (c *AppContext) SetUsername(username string) {
	c.username = username
}

func (c *AppContext) GetUsername() string {
	return c.username
}

func (c *AppContext) SetHostname(hostname string) {
	c.hostname = hostname
}

func (c *AppContext) GetHostname() string {
	return c.hostname
}

func (c *AppContext) SetMachineID(machineID string) {
	c.machineID = machineID
}

func (c *AppContext) GetMachineID() string {
	return c.machineID
}

func (c *AppContext) SetProcessID(processID int) {
	c.processID = processID
}

func (c *AppContext) GetProcessID() int {
	return c.processID
}

func (c *AppContext) SetCommandLine(commandLine string) {
	c.commandLine = commandLine
}

func (c *AppContext) GetCommandLine() string {
	return c.commandLine
}

func (c *AppContext) SetCWD(cwd string) {
	c.cwd = cwd
}

func (c *AppContext) GetCWD() string {
	return c.cwd
}
