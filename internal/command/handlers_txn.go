package command

import (
	"github.com/wiredb/nanoredis/internal/conn"
	"github.com/wiredb/nanoredis/internal/resp"
)

func doMULTI(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) != 1 {
		return conn.Reply(errWrongArgs("MULTI"))
	}
	if c.TxnState() != conn.Idle {
		return conn.Reply(resp.Error("ERR MULTI calls can not be nested"))
	}
	c.BeginMulti()
	return conn.Reply(resp.OK())
}

func doDISCARD(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) != 1 {
		return conn.Reply(errWrongArgs("DISCARD"))
	}
	if c.TxnState() == conn.Idle {
		return conn.Reply(resp.Error("ERR DISCARD without MULTI"))
	}
	c.Discard()
	return conn.Reply(resp.OK())
}

func doEXEC(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) != 1 {
		return conn.Reply(errWrongArgs("EXEC"))
	}
	switch c.TxnState() {
	case conn.Idle:
		return conn.Reply(resp.Error("ERR EXEC without MULTI"))
	case conn.QueuingWithError:
		c.Discard()
		return conn.Reply(resp.Error("EXECABORT Transaction discarded because of previous errors."))
	}

	outcomes := c.Exec()
	var e resp.Encoder
	e.ArrayHeader(len(outcomes))
	for _, o := range outcomes {
		e.Buf = append(e.Buf, o.Reply...)
	}
	return conn.Reply(e.Bytes())
}
