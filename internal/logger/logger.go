package logger

import (
	"github.com/sirupsen/logrus"
)

// Log — глобальный структурированный логгер сервиса.
// Инициализирован с дефолтами, чтобы логирование работало и до Init
// (в тестах и ранних фазах запуска).
var Log = logrus.New()

// Init настраивает уровень и формат логгера.
func Init(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	// JSON формат для production, text для development
	Log.SetFormatter(&logrus.JSONFormatter{})
}

// SetTextFormatter устанавливает текстовый формат логов (для development).
func SetTextFormatter() {
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}
