package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーと定期更新を起動することを示す。
	CommandServe Command = "serve"
	// CommandRefresh は集約サイクルを1回実行して終了することを示す。
	CommandRefresh Command = "refresh"
	// CommandStatus は永続化されたスナップショットの状態を表示することを示す。
	CommandStatus Command = "status"
	// CommandClear はキャッシュを全て削除することを示す。
	CommandClear Command = "clear"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "refresh":
		return CommandRefresh
	case "status":
		return CommandStatus
	case "clear":
		return CommandClear
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
