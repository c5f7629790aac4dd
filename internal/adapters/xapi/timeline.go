package xapi

import (
	"context"
	"io"
	"net/url"
	"strconv"
	"time"

	"tweet-pruner/internal/domain"
)

// Timeline постранично читает ленту пользователя, от новых к старым.
// Cursor каждого поста — токен страницы, с которой он получен.
type Timeline struct {
	client   *Client
	userID   string
	pageSize int
	token    string
	buffer   []domain.Item
	done     bool
}

var _ domain.ItemSource = (*Timeline)(nil)

// Timeline создаёт источник постов, начиная со страницы startToken.
func (c *Client) Timeline(userID, startToken string, pageSize int) *Timeline {
	if pageSize < 5 {
		pageSize = 5
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return &Timeline{client: c, userID: userID, pageSize: pageSize, token: startToken}
}

// Next возвращает следующий пост или io.EOF.
func (t *Timeline) Next(ctx context.Context) (domain.Item, error) {
	for len(t.buffer) == 0 {
		if t.done {
			return domain.Item{}, io.EOF
		}
		if err := t.fetch(ctx); err != nil {
			return domain.Item{}, err
		}
	}
	item := t.buffer[0]
	t.buffer = t.buffer[1:]
	return item, nil
}

type tweetPayload struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	CreatedAt   string `json:"created_at"`
	Attachments struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

type mediaPayload struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url"`
	PreviewImageURL string `json:"preview_image_url"`
}

type timelinePage struct {
	Data     []tweetPayload `json:"data"`
	Includes struct {
		Media []mediaPayload `json:"media"`
	} `json:"includes"`
	Meta struct {
		NextToken   string `json:"next_token"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
}

func (t *Timeline) fetch(ctx context.Context) error {
	query := url.Values{}
	query.Set("max_results", strconv.Itoa(t.pageSize))
	query.Set("tweet.fields", "created_at,attachments,referenced_tweets,in_reply_to_user_id")
	query.Set("expansions", "attachments.media_keys")
	query.Set("media.fields", "type,url,preview_image_url")
	if t.token != "" {
		query.Set("pagination_token", t.token)
	}
	var page timelinePage
	if err := t.client.do(ctx, "GET", "/2/users/"+url.PathEscape(t.userID)+"/tweets", query, "user_tweets", &page); err != nil {
		return err
	}
	t.buffer = convertPage(page, t.token)
	if page.Meta.NextToken == "" {
		t.done = true
	}
	t.token = page.Meta.NextToken
	return nil
}

func convertPage(page timelinePage, cursor string) []domain.Item {
	media := make(map[string]mediaPayload, len(page.Includes.Media))
	for _, m := range page.Includes.Media {
		media[m.MediaKey] = m
	}
	items := make([]domain.Item, 0, len(page.Data))
	for _, tw := range page.Data {
		item := domain.Item{ID: tw.ID, Text: tw.Text, Cursor: cursor}
		if created, err := time.Parse(time.RFC3339, tw.CreatedAt); err == nil {
			item.CreatedAt = created.UTC()
		}
		for _, ref := range tw.ReferencedTweets {
			switch ref.Type {
			case "retweeted":
				item.IsRetweet = true
			case "replied_to":
				item.IsReply = true
			}
		}
		for _, key := range tw.Attachments.MediaKeys {
			m, ok := media[key]
			if !ok {
				continue
			}
			switch m.Type {
			case "photo":
				item.Media = append(item.Media, domain.MediaDescriptor{Kind: domain.MediaImage, Handle: m.URL})
			case "video", "animated_gif":
				handle := m.PreviewImageURL
				if handle == "" {
					handle = m.MediaKey
				}
				item.Media = append(item.Media, domain.MediaDescriptor{Kind: domain.MediaVideo, Handle: handle})
			}
		}
		items = append(items, item)
	}
	return items
}
