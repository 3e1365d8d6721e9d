package core

import "fmt"

// ContractViolation is the panic value raised by Assert.
type ContractViolation struct {
	Message string
}

func (c *ContractViolation) Error() string {
	return "contract violation: " + c.Message
}

// Assert logs and panics with a *ContractViolation when cond is false.
func Assert(cond bool, msg string, args ...interface{}) {
	if cond {
		return
	}
	v := &ContractViolation{Message: fmt.Sprintf(msg, args...)}
	getLogger().Error(v.Error())
	panic(v)
}
