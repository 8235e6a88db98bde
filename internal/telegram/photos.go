package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Dek0rta/homework-bot/internal/store"
)

const maxPhotoBytes = 20 << 20

// acceptPhoto downloads the largest photo size and runs it through the
// image parser.
func (r *Router) acceptPhoto(msg *tgbotapi.Message) {
	cid := msg.Chat.ID
	uid := userID(msg)

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	week, err := r.Schedules.Get(ctx, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotConfigured) {
			r.send(cid, "Сначала настрой расписание уроков: /schedule")
			return
		}
		r.send(cid, "Не получилось загрузить расписание.")
		return
	}

	ph := msg.Photo[len(msg.Photo)-1]
	file, err := r.Bot.GetFile(tgbotapi.FileConfig{FileID: ph.FileID})
	if err != nil {
		r.send(cid, "Не получилось скачать фото: "+err.Error())
		return
	}
	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", r.Bot.Token, file.FilePath)
	img, err := download(ctx, url)
	if err != nil {
		r.send(cid, "Не получилось скачать фото: "+err.Error())
		return
	}

	r.send(cid, "Фото принято, читаю задание...")
	parsed, err := r.Engines.Get(cid).ParseImage(ctx, img, sniffMime(img), week)
	if err != nil {
		r.Log.Warn().Err(err).Int64("chat", cid).Msg("parse image")
		r.send(cid, "Ошибка при анализе фото: "+err.Error())
		return
	}
	r.submitOrConfirm(cid, uid, parsed, week)
}

func download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	cl := &http.Client{Timeout: 60 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
}

func sniffMime(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xD8 {
		return "image/jpeg"
	}
	if len(b) >= 8 &&
		b[0] == 0x89 && b[1] == 0x50 && b[2] == 0x4E && b[3] == 0x47 &&
		b[4] == 0x0D && b[5] == 0x0A && b[6] == 0x1A && b[7] == 0x0A {
		return "image/png"
	}
	return "application/octet-stream"
}
