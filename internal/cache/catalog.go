package cache

import (
	"context"
	"log"
	"time"

	"mehashop_back_end/internal/models"
)

const (
	categoriesKey = "categories:all"
	CategoriesTTL = time.Hour
)

// Categories lit la liste des catégories depuis Redis, ou la charge via load et la met en cache.
// Une panne Redis n'empêche pas la lecture.
func (c *Cache) Categories(ctx context.Context, load func(context.Context) ([]models.Category, error)) ([]models.Category, error) {
	var cached []models.Category
	found, err := c.GetJSON(ctx, categoriesKey, &cached)
	if err != nil {
		log.Printf("⚠️ Cache catégories illisible: %v", err)
	}
	if found {
		return cached, nil
	}

	categories, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.SetJSON(ctx, categoriesKey, categories, CategoriesTTL); err != nil {
		log.Printf("⚠️ Impossible de mettre les catégories en cache: %v", err)
	}
	return categories, nil
}

func (c *Cache) InvalidateCategories(ctx context.Context) error {
	return c.Delete(ctx, categoriesKey)
}
