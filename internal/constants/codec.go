package constants

const (
	PONG = "PONG"
	OK   = "OK"

	PING            = "ping"
	ECHO            = "echo"
	GET             = "get"
	DEL             = "del"
	SET             = "set"
	ZADD            = "zadd"
	ZREMRANGEBYRANK = "zremrangebyrank"
	ZCARD           = "zcard"
	FLUSHALL        = "flushall"

	Array          byte   = '*'
	Error          byte   = '-'
	BulkString     byte   = '$'
	SimpleString   byte   = '+'
	Integer        byte   = ':'
	CarraigeReturn byte   = '\r'
	LineFeed       byte   = '\n'
	DataTypeLength int    = 1
	NewLine        string = "\r\n"
	NewLineLen     int    = 2

	MaxBulkLength  = 512 * 1024 * 1024
	MaxArrayLength = 1024 * 1024
)

const (
	WrongTypeErr       = "WRONGTYPE Operation against a key holding the wrong kind of value"
	WrongArgsErr       = "ERR wrong number of arguments for '%s' command"
	NotFloatErr        = "ERR value is not a valid float"
	NotIntegerErr      = "ERR value is not an integer or out of range"
	UnknownCommandErr  = "ERR unknown command '%s'"
	InvalidBulkErr     = "invalid bulk length at inx %d: %s"
	InvalidArrayErr    = "invalid multibulk length at inx %d: %s"
	InvalidDataTypeErr = "expected %c at inx %d, got %c"
	MissingNewLineErr  = "line at inx %d needs to end with %s"
)
